/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package resources

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/kentakayama/credential-issuer/internal/domain/model"
)

var (
	//go:embed dev_subject.json
	DevSubjectJSON []byte
)

// DevSubject returns the dummy subject served in development mode. Each
// call returns a fresh copy.
func DevSubject() (*model.ProviderResponse, error) {
	var subject model.ProviderResponse
	if err := json.Unmarshal(DevSubjectJSON, &subject); err != nil {
		return nil, fmt.Errorf("decode dev subject: %w", err)
	}
	return &subject, nil
}

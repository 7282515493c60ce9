// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package config

import "errors"

var (
	// ErrInvalidConfig is returned when a config file cannot be parsed or
	// fails validation.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrUnsupportedConfigFormat is returned for a config file extension
	// other than .yaml, .yml or .toml.
	ErrUnsupportedConfigFormat = errors.New("unsupported config file format")
)

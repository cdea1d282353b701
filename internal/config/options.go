// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// DecodeOptions decodes the free form options of a source or destination into target, which must be
// a pointer to a struct using `mapstructure` tags. Unknown keys are rejected and strings are
// converted to durations where needed.
func DecodeOptions(options map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return err
	}

	if err := decoder.Decode(options); err != nil {
		return fmt.Errorf("%w: options: %w", ErrValidation, err)
	}

	return nil
}

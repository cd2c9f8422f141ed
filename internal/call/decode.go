package call

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Decode copies a call configuration mapping into a typed options struct.
// Unknown keys are rejected so typos in configuration surface as errors.
// Scalars are weakly typed ("5" decodes into an int) and strings decode into
// time.Duration fields.
func Decode(config map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("decoder: %w", err)
	}
	if err := dec.Decode(config); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

package config

import (
	"github.com/go-viper/mapstructure/v2"

	"go.viam.com/stereocal/rimage/stereo"
)

// AttributeMap is a free form set of settings keyed by JSON field name.
type AttributeMap map[string]interface{}

// Has reports whether name is set.
func (am AttributeMap) Has(name string) bool {
	_, has := am[name]
	return has
}

// Decode fills to from the attributes. Unknown attributes are an error.
func (am AttributeMap) Decode(to interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           to,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(map[string]interface{}(am))
}

// MatchParams returns the default block matching profile with the attributes applied.
func (am AttributeMap) MatchParams() (stereo.MatchParams, error) {
	params := stereo.DefaultMatchParams()
	if len(am) == 0 {
		return params, nil
	}
	if err := am.Decode(&params); err != nil {
		return stereo.MatchParams{}, err
	}
	if err := params.Validate(); err != nil {
		return stereo.MatchParams{}, err
	}
	return params, nil
}

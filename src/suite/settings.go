package suite

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Setting overrides one descriptor. Nil fields are left untouched.
type Setting struct {
	Enabled   *bool `toml:"enabled"`
	Parameter *int  `toml:"parameter"`
}

// Settings is the on-disk form of a test selection:
//
//	[tests.BlockFrequency]
//	enabled = true
//	parameter = 128
type Settings struct {
	Tests map[string]Setting `toml:"tests"`
}

// LoadSettings decodes a TOML settings file.
func LoadSettings(path string) (*Settings, error) {
	var s Settings
	md, err := toml.DecodeFile(path, &s)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("decode %s: unknown keys %v", path, undecoded)
	}
	return &s, nil
}

// Apply writes the settings into the registry. Parameters are clamped the
// same way SetParam clamps them. Every entry is checked first, so a rejected
// file leaves the registry untouched.
func (r *Registry) Apply(s *Settings) error {
	if s == nil {
		return nil
	}
	for name, st := range s.Tests {
		d, ok := r.Lookup(TestID(name))
		if !ok {
			return fmt.Errorf("unknown test %q", name)
		}
		if st.Parameter != nil && d.Param == nil {
			return fmt.Errorf("test %q takes no parameter", name)
		}
	}

	for name, st := range s.Tests {
		id := TestID(name)
		if st.Enabled != nil {
			if err := r.SetEnabled(id, *st.Enabled); err != nil {
				return err
			}
		}
		if st.Parameter != nil {
			if _, err := r.SetParam(id, *st.Parameter); err != nil {
				return err
			}
		}
	}
	return nil
}

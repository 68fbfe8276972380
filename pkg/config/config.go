// Package config implements the configuration contract from spec §4.10: a
// glob-sectioned ini file searched for by walking up from the loaded native
// plugin's path to the filesystem root, with the first matching section
// inside the first file found winning. Unknown keys and keys with the wrong
// value type are collected rather than treated as fatal, so a config written
// for a newer bridge version degrades gracefully on an older one.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/ini.v1"
)

// FileName is the config file searched for in every candidate directory.
const FileName = "abibridge.ini"

// DefaultFrameRate is the UI pump rate (Hz) used when frame_rate is absent.
const DefaultFrameRate = 60

// Options is the parsed, typed configuration that applies to one loaded
// plugin, after its config file has been found and its matching section
// resolved.
type Options struct {
	Group string
	// DisablePipesLogPath is empty when worker stdio should be piped to the
	// native-side logger. A non-empty value disables piping; unless it is
	// "true" or "1" it is used as-is as the worker's log file path (its
	// writability is not checked), otherwise a default log file name is
	// derived per worker (disable_pipes may be
	// written as either a bare boolean or a path, per spec §4.10).
	DisablePipesLogPath      string
	EditorCoordinateHack     bool
	EditorDisableHostScaling bool
	EditorForceDnd           bool
	EditorXEmbed             bool
	FrameRate                int
	HideDAW                  bool
	VST3Prefer32Bit          bool
}

// Default returns the options in effect when no config file or matching
// section is found.
func Default() Options {
	return Options{FrameRate: DefaultFrameRate}
}

// PipesDisabled reports whether worker stdio piping should be skipped.
func (o Options) PipesDisabled() bool {
	return o.DisablePipesLogPath != ""
}

// LogFilePath returns the file worker stdio should be redirected to when
// PipesDisabled is true and disable_pipes named an explicit path, falling
// back to defaultPath otherwise.
func (o Options) LogFilePath(defaultPath string) string {
	if o.DisablePipesLogPath == "" || o.DisablePipesLogPath == "true" || o.DisablePipesLogPath == "1" {
		return defaultPath
	}
	return o.DisablePipesLogPath
}

// Result is the outcome of a Load: the resolved options plus whatever the
// loader couldn't make sense of, surfaced to the caller's logger rather than
// treated as a load failure.
type Result struct {
	Options        Options
	SourceFile     string
	MatchedSection string
	UnknownKeys    []string
	BadValues      []string
}

// searchConfigFile walks from dir upward to the filesystem root, returning
// the path of the first FileName it finds. Per spec §4.10, the search
// starts at the loaded plugin's own directory.
func searchConfigFile(dir string) (string, bool) {
	dir = filepath.Clean(dir)
	for {
		candidate := filepath.Join(dir, FileName)
		if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// Load resolves the configuration for a plugin loaded from pluginPath. If no
// config file is found, it returns Default() with no error. A malformed ini
// file is a real error; unrecognized keys and bad value types inside an
// otherwise valid file are not.
func Load(pluginPath string) (*Result, error) {
	res := &Result{Options: Default()}

	absPath, err := filepath.Abs(pluginPath)
	if err != nil {
		absPath = pluginPath
	}

	file, found := searchConfigFile(filepath.Dir(absPath))
	if !found {
		return res, nil
	}
	res.SourceFile = file

	cfg, err := ini.LoadSources(ini.LoadOptions{AllowBooleanKeys: true}, file)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", file, err)
	}

	section, matched := matchSection(cfg, absPath)
	if !matched {
		return res, nil
	}
	res.MatchedSection = section.Name()

	applySection(res, section)
	return res, nil
}

// matchSection returns the first section (in file order) whose name is a
// glob matching pluginPath, or the ini default (unnamed) section if it
// carries any keys. "*" is the conventional catch-all.
func matchSection(cfg *ini.File, pluginPath string) (*ini.Section, bool) {
	base := filepath.Base(pluginPath)
	for _, section := range cfg.Sections() {
		name := section.Name()
		if name == ini.DefaultSection {
			if len(section.Keys()) > 0 {
				return section, true
			}
			continue
		}
		if ok, _ := filepath.Match(name, pluginPath); ok {
			return section, true
		}
		if ok, _ := filepath.Match(name, base); ok {
			return section, true
		}
	}
	return nil, false
}

type keyApplier func(o *Options, key *ini.Key) error

var recognizedKeys = map[string]keyApplier{
	"group": func(o *Options, k *ini.Key) error {
		o.Group = k.String()
		return nil
	},
	"disable_pipes": func(o *Options, k *ini.Key) error {
		raw := k.String()
		if v, err := k.Bool(); err == nil {
			if v {
				o.DisablePipesLogPath = "true"
			} else {
				o.DisablePipesLogPath = ""
			}
			return nil
		}
		o.DisablePipesLogPath = raw
		return nil
	},
	"editor_coordinate_hack": func(o *Options, k *ini.Key) error {
		v, err := k.Bool()
		if err != nil {
			return err
		}
		o.EditorCoordinateHack = v
		return nil
	},
	"editor_disable_host_scaling": func(o *Options, k *ini.Key) error {
		v, err := k.Bool()
		if err != nil {
			return err
		}
		o.EditorDisableHostScaling = v
		return nil
	},
	"editor_force_dnd": func(o *Options, k *ini.Key) error {
		v, err := k.Bool()
		if err != nil {
			return err
		}
		o.EditorForceDnd = v
		return nil
	},
	"editor_xembed": func(o *Options, k *ini.Key) error {
		v, err := k.Bool()
		if err != nil {
			return err
		}
		o.EditorXEmbed = v
		return nil
	},
	"frame_rate": func(o *Options, k *ini.Key) error {
		v, err := k.Int()
		if err != nil {
			return err
		}
		if v <= 0 {
			return fmt.Errorf("frame_rate must be positive, got %d", v)
		}
		o.FrameRate = v
		return nil
	},
	"hide_daw": func(o *Options, k *ini.Key) error {
		v, err := k.Bool()
		if err != nil {
			return err
		}
		o.HideDAW = v
		return nil
	},
	"vst3_prefer_32bit": func(o *Options, k *ini.Key) error {
		v, err := k.Bool()
		if err != nil {
			return err
		}
		o.VST3Prefer32Bit = v
		return nil
	},
}

func applySection(res *Result, section *ini.Section) {
	for _, key := range section.Keys() {
		apply, ok := recognizedKeys[key.Name()]
		if !ok {
			res.UnknownKeys = append(res.UnknownKeys, key.Name())
			continue
		}
		if err := apply(&res.Options, key); err != nil {
			res.BadValues = append(res.BadValues, fmt.Sprintf("%s: %v", key.Name(), err))
		}
	}
}

// Copyright 2025 The RoidOTA Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package log

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Options configures the process logger.
type Options struct {
	// Name is added to every entry as the logger name.
	Name string `json:"name,omitempty" mapstructure:"name"`

	// Level is one of debug, info, warn, error. It can be changed at runtime
	// by editing the config file.
	Level string `json:"level,omitempty" mapstructure:"level"`

	// Format is 'console' or 'json'.
	Format string `json:"format,omitempty" mapstructure:"format"`

	EnableColor   bool `json:"enable-color,omitempty" mapstructure:"enable-color"`
	DisableCaller bool `json:"disable-caller,omitempty" mapstructure:"disable-caller"`

	// CallerSkip is the number of frames between the caller and a Logger
	// method. The package-level helpers add their own frame on top.
	CallerSkip int `json:"caller-skip,omitempty" mapstructure:"caller-skip"`

	// Sampling caps repeated messages per second.
	Sampling bool `json:"sampling,omitempty" mapstructure:"sampling"`

	// OutputPaths defaults to stdout.
	OutputPaths []string `json:"output-paths,omitempty" mapstructure:"output-paths"`
}

func NewOptions() *Options {
	return &Options{
		Level:       "info",
		Format:      "console",
		EnableColor: true,
		CallerSkip:  1,
		Sampling:    true,
		OutputPaths: []string{"stdout"},
	}
}

func (o *Options) Validate() []error {
	var errs []error

	if _, err := parseLevel(o.Level); err != nil {
		errs = append(errs, fmt.Errorf("--log.level: %w", err))
	}
	if o.Format != "console" && o.Format != "json" {
		errs = append(errs, fmt.Errorf("--log.format must be 'console' or 'json', got %q", o.Format))
	}
	if o.CallerSkip < 0 {
		errs = append(errs, fmt.Errorf("--log.caller-skip must not be negative"))
	}

	return errs
}

func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Name, "log.name", o.Name, "Logger name added to every entry.")
	fs.StringVar(&o.Level, "log.level", o.Level, "Minimum level: debug, info, warn or error.")
	fs.StringVar(&o.Format, "log.format", o.Format, "Output format: console or json.")
	fs.BoolVar(&o.EnableColor, "log.enable-color", o.EnableColor, "Colorize levels in console output.")
	fs.BoolVar(&o.DisableCaller, "log.disable-caller", o.DisableCaller, "Omit the caller file and line.")
	fs.IntVar(&o.CallerSkip, "log.caller-skip", o.CallerSkip, "Extra caller frames to skip.")
	fs.BoolVar(&o.Sampling, "log.sampling", o.Sampling, "Sample repeated messages under load.")
	fs.StringSliceVar(&o.OutputPaths, "log.output-paths", o.OutputPaths, "Output paths, e.g. stdout or /var/log/roidota-hub.log.")
}

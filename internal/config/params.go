package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Parameter keys read from the simulation parameter file.
const (
	ParamStepIncrement = "step_increment"
	ParamRestartStep   = "restart_step"
)

// Params are the values of the key=value parameter file.
type Params map[string]string

// ParseParams reads key=value lines. Blank lines and lines starting with
// '#' or '!' are ignored; keys are case-insensitive; later keys win.
func ParseParams(r io.Reader) (Params, error) {
	p := make(Params)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || text[0] == '#' || text[0] == '!' {
			continue
		}
		key, value, ok := strings.Cut(text, "=")
		if !ok {
			return nil, fmt.Errorf("params line %d: missing '=' in %q", line, text)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			return nil, fmt.Errorf("params line %d: empty key", line)
		}
		p[key] = strings.TrimSpace(value)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read params: %w", err)
	}
	return p, nil
}

// ReadParams parses the parameter file at path. A missing file yields
// empty params.
func ReadParams(path string) (Params, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Params{}, nil
		}
		return nil, fmt.Errorf("open params: %w", err)
	}
	defer f.Close()
	return ParseParams(f)
}

// Float returns the value of key as a float, nil when absent.
func (p Params) Float(key string) (*float64, error) {
	v, ok := p[key]
	if !ok || v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("param %s: %w", key, err)
	}
	return &f, nil
}

// Int returns the value of key as an integer, nil when absent.
func (p Params) Int(key string) (*int64, error) {
	v, ok := p[key]
	if !ok || v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("param %s: %w", key, err)
	}
	return &n, nil
}

// ApplyParams fills StepIncrement and RestartStep from the parameter file
// where the configuration left them unset.
func (c *Config) ApplyParams() error {
	p, err := ReadParams(c.ParamsPath())
	if err != nil {
		return err
	}
	if c.StepIncrement == nil {
		if c.StepIncrement, err = p.Float(ParamStepIncrement); err != nil {
			return err
		}
	}
	if c.RestartStep == nil {
		if c.RestartStep, err = p.Int(ParamRestartStep); err != nil {
			return err
		}
	}
	return nil
}

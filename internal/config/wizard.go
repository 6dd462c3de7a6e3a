package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a new configuration wizard on stdin/stdout
func NewWizard() *Wizard {
	return NewWizardWithIO(os.Stdin, os.Stdout)
}

// NewWizardWithIO creates a wizard reading answers from in and writing prompts to out
func NewWizardWithIO(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run runs the interactive configuration wizard
func (w *Wizard) Run() (*Config, error) {
	fmt.Fprintln(w.out, "=== gemchat configuration ===")
	fmt.Fprintln(w.out)

	cfg := DefaultConfig()
	validator := NewValidator()

	fmt.Fprintf(w.out, "Gemini API key (press Enter to use $%s at runtime): ", APIKeyEnv)
	key, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if key != "" {
		if err := validator.ValidateAPIKey(key); err != nil {
			return nil, err
		}
		cfg.Gemini.APIKey = key
	}

	fmt.Fprintf(w.out, "Model name [%s]: ", cfg.Gemini.Model)
	model, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if model != "" {
		if err := validator.ValidateModel(model); err != nil {
			fmt.Fprintf(w.out, "Warning: %v, using default (%s)\n", err, cfg.Gemini.Model)
		} else {
			cfg.Gemini.Model = model
		}
	}

	fmt.Fprintf(w.out, "Listen port [%d]: ", cfg.Server.Port)
	port, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if port != "" {
		p, convErr := strconv.Atoi(port)
		if convErr == nil {
			convErr = validator.ValidatePort(p)
		}
		if convErr != nil {
			fmt.Fprintf(w.out, "Warning: invalid port %q, using default (%d)\n", port, cfg.Server.Port)
		} else {
			cfg.Server.Port = p
		}
	}

	fmt.Fprint(w.out, "Log level (debug/info/warn/error) [info]: ")
	level, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if level != "" {
		if err := validator.ValidateLogLevel(level); err != nil {
			fmt.Fprintf(w.out, "Warning: %v, using default (info)\n", err)
		} else {
			cfg.Logging.Level = level
		}
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Configuration complete!")

	return cfg, nil
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/Veraticus/finmail/internal/cli"
	"github.com/Veraticus/finmail/internal/common"
	"github.com/Veraticus/finmail/internal/orchestrator"
)

// resultError turns a failed tool result into a command error.
func resultError(res orchestrator.Result) error {
	if res.OK() {
		return nil
	}
	if errors.Is(res.Err, common.ErrUnavailable) {
		return common.NewUserError(res.Error+", check the configuration", res.Err)
	}
	return common.NewUserError(res.Error, res.Err)
}

// printJSON writes v as indented JSON for piping into other tools.
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printResult renders a tool result either as JSON or under a styled title.
func printResult(w io.Writer, title string, res orchestrator.Result, asJSON bool) error {
	if err := resultError(res); err != nil {
		return err
	}
	if asJSON {
		return printJSON(w, res)
	}
	if _, err := fmt.Fprintln(w, cli.FormatTitle(title)); err != nil {
		return err
	}
	return printJSON(w, res.Value)
}

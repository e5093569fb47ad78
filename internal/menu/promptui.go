package menu

import (
	"errors"
	"io"

	"github.com/manifoldco/promptui"
)

// PromptUI is a Prompter backed by promptui. Nil streams use the terminal.
type PromptUI struct {
	Stdin  io.ReadCloser
	Stdout io.WriteCloser
}

func (p PromptUI) Select(label string, items []string) (int, error) {
	s := promptui.Select{
		Label:  label,
		Items:  items,
		Size:   len(items),
		Stdin:  p.Stdin,
		Stdout: p.Stdout,
	}
	i, _, err := s.Run()
	return i, promptError(err)
}

func (p PromptUI) Text(label string) (string, error) {
	prompt := promptui.Prompt{
		Label:  label,
		Stdin:  p.Stdin,
		Stdout: p.Stdout,
	}
	value, err := prompt.Run()
	return value, promptError(err)
}

func promptError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, promptui.ErrInterrupt), errors.Is(err, promptui.ErrEOF), errors.Is(err, promptui.ErrAbort):
		return ErrCancelled
	}
	return err
}

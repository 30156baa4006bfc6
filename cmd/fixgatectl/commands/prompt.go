package commands

import (
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
)

// errAborted is returned when the operator interrupts a prompt.
var errAborted = errors.New("aborted")

// promptPassword asks for a password with masked input.
func promptPassword(label string) (string, error) {
	p := promptui.Prompt{
		Label: label,
		Mask:  '*',
	}
	result, err := p.Run()
	return result, promptErr(err)
}

// promptNewCredential asks for a credential twice, enforcing the
// minimum length the server configuration expects for counterparty
// and admin passwords.
func promptNewCredential(minLength int) (string, error) {
	p := promptui.Prompt{
		Label: "Password",
		Mask:  '*',
		Validate: func(input string) error {
			if len(input) < minLength {
				return fmt.Errorf("password must be at least %d characters", minLength)
			}
			return nil
		},
	}
	password, err := p.Run()
	if err != nil {
		return "", promptErr(err)
	}

	confirm, err := promptPassword("Confirm password")
	if err != nil {
		return "", err
	}
	if password != confirm {
		return "", errors.New("passwords do not match")
	}
	return password, nil
}

func promptErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) {
		return errAborted
	}
	return err
}

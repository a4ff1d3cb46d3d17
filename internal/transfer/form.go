package transfer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harrylevesque/dwetransfer/internal/utils"
	"github.com/harrylevesque/dwetransfer/internal/wallet"
)

// Form is the four user inputs of a transfer.
type Form struct {
	FilePath  string
	FileName  string
	Data      []byte
	Recipient string
	Title     string
	Message   string
}

// ValidationError names the first invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Field names reported in ValidationError.
const (
	FieldFile      = "file"
	FieldRecipient = "walletAddress"
	FieldTitle     = "title"
	FieldMessage   = "message"
)

// LoadForm reads the file at path and fills a Form. An empty path yields a
// form without data, which Validate rejects.
func LoadForm(path, recipient, title, message string) (*Form, error) {
	f := &Form{
		FilePath:  path,
		Recipient: strings.TrimSpace(recipient),
		Title:     title,
		Message:   message,
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return f, nil
	}
	path = utils.ExpandHome(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, utils.Wrap(utils.CodeValidation, fmt.Sprintf("cannot read %s", path), err)
	}
	f.FilePath = path
	f.FileName = filepath.Base(path)
	f.Data = data
	return f, nil
}

// Validate checks the file, recipient, title and message in that order.
func (f *Form) Validate() error {
	if len(f.Data) == 0 {
		return &ValidationError{Field: FieldFile, Message: "Please select a file"}
	}
	if !wallet.IsAddress(f.Recipient) {
		return &ValidationError{Field: FieldRecipient, Message: "Please enter a valid ethereum address"}
	}
	if f.Title == "" {
		return &ValidationError{Field: FieldTitle, Message: "Please enter a title"}
	}
	if f.Message == "" {
		return &ValidationError{Field: FieldMessage, Message: "Please enter a message"}
	}
	return nil
}

// Size is the file size in bytes.
func (f *Form) Size() int64 { return int64(len(f.Data)) }

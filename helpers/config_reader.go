package helpers

import (
	"encoding/json"
	"fmt"
	"os"
)

// DecodeFile is a generic JSON config loader, kept from the teacher's own
// helpers package (originally written to load a user database; already
// generic over its target, so no change was needed there — only the
// error wrapping was updated to use %w so callers can errors.As/Is the
// underlying cause).
func DecodeFile(fileName string, object interface{}) error {
	file, err := os.Open(fileName)
	if err != nil {
		return fmt.Errorf("could not open config file %q: %w", fileName, err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(object); err != nil {
		return fmt.Errorf("could not parse config file %q: %w", fileName, err)
	}
	return nil
}

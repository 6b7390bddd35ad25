package tunnelregistry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// strongboxFileName is the well-known name sibling processes look for
// under the strongbox directory to discover a running registry's port.
const strongboxFileName = "tunnelregistry.json"

type strongboxContent struct {
	Port int `json:"port"`
}

// WriteStrongbox publishes port at dir/tunnelregistry.json so sibling
// processes can discover the running registry's HTTP port without
// sharing memory with the process that owns it.
func WriteStrongbox(dir string, port int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("WriteStrongbox: could not create strongbox dir: %w", err)
	}
	p := filepath.Join(dir, strongboxFileName)
	f, err := os.OpenFile(p, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("WriteStrongbox: could not open file for writing: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	if err := enc.Encode(strongboxContent{Port: port}); err != nil {
		return fmt.Errorf("WriteStrongbox: could not encode port: %w", err)
	}
	return nil
}

// ReadStrongbox reads back the port published by WriteStrongbox.
func ReadStrongbox(dir string) (int, error) {
	p := filepath.Join(dir, strongboxFileName)
	content, err := os.ReadFile(p)
	if err != nil {
		return 0, fmt.Errorf("ReadStrongbox: could not read file: %w", err)
	}
	var sb strongboxContent
	if err := json.Unmarshal(content, &sb); err != nil {
		return 0, fmt.Errorf("ReadStrongbox: could not parse file: %w", err)
	}
	return sb.Port, nil
}

// RemoveStrongbox deletes the published port file, if any. It is safe
// to call when the file does not exist.
func RemoveStrongbox(dir string) error {
	p := filepath.Join(dir, strongboxFileName)
	err := os.Remove(p)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("RemoveStrongbox: could not remove file: %w", err)
	}
	return nil
}

package bootstrap

import (
	"encoding/json"
	"fmt"
	"os"

	apperrors "ferry/internal/errors"
)

// PinnedManifestFileName is read from the user data directory when
// USE_PINNED_UPDATE_MANIFEST is set.
const PinnedManifestFileName = "pinned_update.json"

// LoadPinnedManifest reads and validates a pinned manifest. The content is
// returned as-is for the host updater to interpret.
func LoadPinnedManifest(path string) (json.RawMessage, error) {
	//nolint:gosec // G304: path is the fixed manifest location in user data
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeManifestRead, fmt.Sprintf("could not read pinned manifest %s", path), err)
	}
	if !json.Valid(data) {
		var probe any
		err := json.Unmarshal(data, &probe)
		return nil, apperrors.New(apperrors.CodeManifestParse, fmt.Sprintf("could not parse pinned manifest %s", path), err)
	}
	return json.RawMessage(data), nil
}

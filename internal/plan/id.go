package plan

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// projectNamespace scopes derived project IDs so they cannot collide with
// IDs from other UUID users.
var projectNamespace = uuid.MustParse("9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d")

// DeriveProjectID returns the stable identifier for a project. An explicit
// ProjectID on the record always wins; otherwise the ID is derived
// deterministically from the project name, plus the creation time when the
// file declares one, so re-running the same project resolves to the same ID
// (and the same checkpoint trail) rather than minting a new one.
func DeriveProjectID(p Project) string {
	if p.ProjectID != "" {
		return p.ProjectID
	}

	seed := strings.ToLower(strings.TrimSpace(p.Name))
	if !p.CreatedAt.IsZero() {
		seed = fmt.Sprintf("%s|%d", seed, p.CreatedAt.Unix())
	}
	id := uuid.NewSHA1(projectNamespace, []byte(seed))
	return fmt.Sprintf("proj-%s", id.String()[:13])
}

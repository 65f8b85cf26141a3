package transferget

import (
	"fmt"
	"os/exec"
	"strconv"
)

// HelperChowner shells out to an external privileged helper executable when
// the process running transfer-get cannot chown directly (spec §4.6).
// Grounded on the teacher's pattern of invoking external tools via
// os/exec (noted in main.go's go:generate comments) and on
// itchio-butler's os/exec-based invocation of an external archiver.
type HelperChowner struct {
	Helper string
}

func (h HelperChowner) Chown(path string, uid, gid int) error {
	cmd := exec.Command(h.Helper, path, strconv.Itoa(uid), strconv.Itoa(gid))
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("chown helper %s failed: %w (%s)", h.Helper, err, out)
	}
	return nil
}

// NewChowner selects DirectChowner or HelperChowner according to
// config.TransferGetQ's chown.enable/helper fields (spec §6).
func NewChowner(enabled bool, helper string) Chowner {
	if enabled && helper != "" {
		return HelperChowner{Helper: helper}
	}
	return DirectChowner{}
}

// Package artifacts persists the outcome of deployment runs as JSON files, one set of files per
// run, grouped by network.
package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/segmentio/ksuid"

	"github.com/stableswap-ng/pool-deployer/chain/evm"
	"github.com/stableswap-ng/pool-deployer/deployer"
	"github.com/stableswap-ng/pool-deployer/operations"
	"github.com/stableswap-ng/pool-deployer/pool"
	"github.com/stableswap-ng/pool-deployer/verify"
)

const (
	JSONExt = "json"

	// Artifact types, also used as suffixes of the file names.
	ArtifactRun     = "run"
	ArtifactReports = "reports"
)

// ErrArtifactNotFound is returned when an artifact is not in the filesystem.
var ErrArtifactNotFound = errors.New("artifact not found")

// Run is the summary of one deployment run.
type Run struct {
	ID          string          `json:"id"`
	Network     string          `json:"network"`
	Variant     pool.Variant    `json:"variant"`
	Mode        evm.Mode        `json:"mode"`
	ChainID     uint64          `json:"chain_id"`
	Factory     common.Address  `json:"factory"`
	Sender      common.Address  `json:"sender"`
	Pool        common.Address  `json:"pool"`
	TxHash      common.Hash     `json:"tx_hash"`
	BlockNumber uint64          `json:"block_number"`
	Parameters  pool.Parameters `json:"parameters"`
	Report      verify.Report   `json:"report"`
	// Category and Error are set when the run failed.
	Category string `json:"category,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Dir is a directory holding the artifacts of deployment runs.
type Dir struct {
	rootPath string
}

// NewDir returns the artifacts directory at rootPath. The directory is created on first save.
func NewDir(rootPath string) *Dir {
	return &Dir{rootPath: rootPath}
}

// NetworkDirPath returns the directory holding the runs of a network.
func (d *Dir) NetworkDirPath(networkID string) string {
	return filepath.Join(d.rootPath, strings.ReplaceAll(networkID, ":", "-"))
}

// SaveRun writes the run summary and the step reports of a deployment. err is the error Deploy
// returned, if any. It returns the run id, which sorts in creation order.
func (d *Dir) SaveRun(req deployer.Request, res deployer.Result, err error) (string, error) {
	id := ksuid.New()

	dir := d.NetworkDirPath(req.Network)
	if merr := mkdirAllGitKeep(dir); merr != nil {
		return "", fmt.Errorf("failed to create artifacts directory %s: %w", dir, merr)
	}

	run := Run{
		ID:          id.String(),
		Network:     req.Network,
		Variant:     req.Variant,
		Mode:        req.Mode,
		ChainID:     res.ChainID,
		Factory:     res.Factory,
		Sender:      res.Sender,
		Pool:        res.Pool,
		TxHash:      res.TxHash,
		BlockNumber: res.BlockNumber,
		Parameters:  req.Parameters,
		Report:      res.Report,
	}
	if err != nil {
		run.Category = deployer.Category(err)
		run.Error = err.Error()
	}

	if werr := writeJSON(d.artifactPath(dir, id, req.Network, ArtifactRun), run); werr != nil {
		return "", werr
	}
	steps := res.Steps
	if steps == nil {
		steps = []operations.Report[any, any]{}
	}
	if werr := writeJSON(d.artifactPath(dir, id, req.Network, ArtifactReports), steps); werr != nil {
		return "", werr
	}

	return run.ID, nil
}

// LoadRun loads the summary of run id on a network.
func (d *Dir) LoadRun(networkID, id string) (Run, error) {
	k, err := ksuid.Parse(id)
	if err != nil {
		return Run{}, fmt.Errorf("invalid run id %q: %w", id, err)
	}

	return loadJSON[Run](d.artifactPath(d.NetworkDirPath(networkID), k, networkID, ArtifactRun))
}

// LoadReports loads the step reports of run id on a network.
func (d *Dir) LoadReports(networkID, id string) ([]operations.Report[any, any], error) {
	k, err := ksuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", id, err)
	}

	return loadJSON[[]operations.Report[any, any]](d.artifactPath(d.NetworkDirPath(networkID), k, networkID, ArtifactReports))
}

// RunIDs returns the ids of the runs saved for a network, oldest first.
func (d *Dir) RunIDs(networkID string) ([]string, error) {
	entries, err := os.ReadDir(d.NetworkDirPath(networkID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	suffix := "_" + ArtifactRun + "." + JSONExt
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, suffix) {
			continue
		}
		id, _, ok := strings.Cut(name, "-")
		if !ok {
			continue
		}
		if _, perr := ksuid.Parse(id); perr != nil {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)

	return ids, nil
}

func (d *Dir) artifactPath(dir string, id ksuid.KSUID, networkID, name string) string {
	filename := fmt.Sprintf("%s-%s_%s.%s", id.String(), strings.ReplaceAll(networkID, ":", "-"), name, JSONExt)

	return filepath.Join(dir, filename)
}

// writeJSON marshals v into pretty JSON and writes it at path, readable by the owner only.
func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	return os.WriteFile(path, b, 0600)
}

func loadJSON[T any](path string) (T, error) {
	var v T

	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return v, fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
	}
	if err != nil {
		return v, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err = json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("failed to unmarshal JSON at path %s: %w", path, err)
	}

	return v, nil
}

// mkdirAllGitKeep creates path and its parents, and drops a .gitkeep file in it.
func mkdirAllGitKeep(path string) error {
	if err := os.MkdirAll(path, os.ModePerm); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(path, ".gitkeep"))
	if err != nil {
		return err
	}

	return f.Close()
}

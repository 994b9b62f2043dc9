package ensemble

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/kiryteo/lumin/internal/ctxlog"
	"github.com/kiryteo/lumin/internal/model"
	"github.com/kiryteo/lumin/internal/pipeline"
)

// #region manifest
// ManifestVersion is the on-disk layout version written by Save.
const ManifestVersion = 1

// Artifact roles.
const (
	RoleWeights    = "weights"
	RoleResults    = "results"
	RoleMember     = "member"
	RoleInputPipe  = "input_pipe"
	RoleOutputPipe = "output_pipe"
	RoleFeatures   = "features"
)

// Manifest lists every file of a saved ensemble and its role.
type Manifest struct {
	Version   int        `yaml:"version" json:"version"`
	Name      string     `yaml:"name" json:"name"`
	NOut      int        `yaml:"n_out" json:"n_out"`
	Size      int        `yaml:"size" json:"size"`
	CreatedAt time.Time  `yaml:"created_at" json:"created_at"`
	Artifacts []Artifact `yaml:"artifacts" json:"artifacts"`
}

// Artifact is one file in a saved ensemble. Ref and Index are set for
// member artifacts only.
type Artifact struct {
	Role  string `yaml:"role" json:"role"`
	File  string `yaml:"file" json:"file"`
	Ref   string `yaml:"ref,omitempty" json:"ref,omitempty"`
	Index int    `yaml:"index" json:"index"`
}

type weightEntry struct {
	Ref    string  `json:"ref"`
	Weight float64 `json:"weight"`
}

// ManifestPath is the manifest location for an ensemble saved at dest.
func ManifestPath(dest string) string {
	return filepath.Join(dest, filepath.Base(dest)+"_manifest.yaml")
}

// ReadManifest loads the manifest of the ensemble saved at dest.
func ReadManifest(dest string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(ManifestPath(dest))
	if err != nil {
		return m, fmt.Errorf("read manifest: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Version != ManifestVersion {
		return m, fmt.Errorf("manifest version %d not supported", m.Version)
	}
	return m, nil
}

func (m Manifest) byRole(role string) []Artifact {
	var out []Artifact
	for _, a := range m.Artifacts {
		if a.Role == role {
			out = append(out, a)
		}
	}
	return out
}

// #endregion manifest

// #region save
// Save writes the ensemble to the directory dest. Every file is named with
// the base name of dest as prefix. The directory is assembled beside dest and
// swapped into place, so a failed save leaves any previous ensemble intact.
// features overrides the stored feature list when non-nil.
func (e *Ensemble) Save(ctx context.Context, dest string, features []string, overwrite bool) error {
	logger := ctxlog.FromContext(ctx)
	if e.state == StateEmpty || len(e.members) == 0 {
		return ErrNotBuilt
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dest = filepath.Clean(dest)

	exists, err := checkDest(dest)
	if err != nil {
		return err
	}
	if exists && !overwrite {
		return fmt.Errorf("%s: %w", dest, ErrAlreadyExists)
	}
	if features == nil {
		features = e.features
	}

	staging := dest + ".staging-" + uuid.NewString()
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(staging)
		}
	}()

	base := filepath.Base(dest)
	man := Manifest{
		Version:   ManifestVersion,
		Name:      base,
		NOut:      e.nOut,
		Size:      len(e.members),
		CreatedAt: time.Now().UTC(),
	}
	write := func(role, suffix string, data []byte) (Artifact, error) {
		a := Artifact{Role: role, File: base + suffix}
		if err := os.WriteFile(filepath.Join(staging, a.File), data, 0o644); err != nil {
			return a, fmt.Errorf("write %s: %w", a.File, err)
		}
		man.Artifacts = append(man.Artifacts, a)
		return a, nil
	}

	weights := make([]weightEntry, len(e.members))
	for i, m := range e.members {
		weights[i] = weightEntry{Ref: m.Ref, Weight: m.Weight}
	}
	if err := writeJSON(write, RoleWeights, "_weights.json", weights); err != nil {
		return err
	}
	if err := writeJSON(write, RoleResults, "_results.json", e.results); err != nil {
		return err
	}

	var codec model.Codec
	for i, m := range e.members {
		data, err := codec.Encode(m.Predictor)
		if err != nil {
			return fmt.Errorf("encode member %s: %w", m.Ref, err)
		}
		if _, err := write(RoleMember, fmt.Sprintf("_%d.model.json", i), data); err != nil {
			return err
		}
		last := &man.Artifacts[len(man.Artifacts)-1]
		last.Ref, last.Index = m.Ref, i
	}

	for _, p := range []struct {
		role, suffix string
		pipe         pipeline.Pipeline
	}{
		{RoleInputPipe, "_input_pipe.json", e.inputPipe},
		{RoleOutputPipe, "_output_pipe.json", e.outputPipe},
	} {
		if p.pipe == nil {
			continue
		}
		data, err := pipeline.Marshal(p.pipe)
		if err != nil {
			return fmt.Errorf("%s: %w", p.role, err)
		}
		if _, err := write(p.role, p.suffix, data); err != nil {
			return err
		}
	}

	if len(features) > 0 {
		if err := writeJSON(write, RoleFeatures, "_feats.json", features); err != nil {
			return err
		}
	}

	manData, err := yaml.Marshal(man)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(staging, base+"_manifest.yaml"), manData, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	if err := swapDir(staging, dest); err != nil {
		return err
	}
	committed = true

	e.features = features
	e.state = StateSaved
	logger.Info("Ensemble saved", "dest", dest, "members", len(e.members), "artifacts", len(man.Artifacts)+1)
	return nil
}

func writeJSON(write func(role, suffix string, data []byte) (Artifact, error), role, suffix string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", role, err)
	}
	_, err = write(role, suffix, data)
	return err
}

// checkDest reports whether dest holds a saved ensemble. A missing or empty
// directory is free; any other content is refused.
func checkDest(dest string) (bool, error) {
	info, err := os.Stat(dest)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", dest, err)
	}
	if !info.IsDir() {
		return false, fmt.Errorf("%s is not a directory", dest)
	}
	if _, err := os.Stat(ManifestPath(dest)); err == nil {
		return true, nil
	}
	entries, err := os.ReadDir(dest)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", dest, err)
	}
	if len(entries) > 0 {
		return false, fmt.Errorf("%s is not empty and holds no ensemble manifest", dest)
	}
	return false, nil
}

// swapDir moves staging to dest, replacing dest if present.
func swapDir(staging, dest string) error {
	if _, err := os.Stat(dest); errors.Is(err, fs.ErrNotExist) {
		if err := os.Rename(staging, dest); err != nil {
			return fmt.Errorf("commit %s: %w", dest, err)
		}
		return nil
	}
	old := dest + ".old-" + uuid.NewString()
	if err := os.Rename(dest, old); err != nil {
		return fmt.Errorf("move aside %s: %w", dest, err)
	}
	if err := os.Rename(staging, dest); err != nil {
		if rerr := os.Rename(old, dest); rerr != nil {
			return fmt.Errorf("commit %s: %w (restore failed: %v)", dest, err, rerr)
		}
		return fmt.Errorf("commit %s: %w", dest, err)
	}
	return os.RemoveAll(old)
}

// #endregion save

// #region load
// Load replaces the ensemble's state with the one saved at dest. Missing
// pipelines or feature lists leave those fields nil.
func (e *Ensemble) Load(ctx context.Context, dest string, codec model.Codec) error {
	logger := ctxlog.FromContext(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}
	dest = filepath.Clean(dest)

	man, err := ReadManifest(dest)
	if err != nil {
		return err
	}
	read := func(a Artifact) ([]byte, error) {
		data, err := os.ReadFile(filepath.Join(dest, a.File))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", a.Role, err)
		}
		return data, nil
	}
	optional := func(role string) ([]byte, bool, error) {
		as := man.byRole(role)
		if len(as) == 0 {
			return nil, false, nil
		}
		data, err := os.ReadFile(filepath.Join(dest, as[0].File))
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug("Optional artifact missing", "role", role, "file", as[0].File)
			return nil, false, nil
		}
		if err != nil {
			return nil, false, fmt.Errorf("read %s: %w", role, err)
		}
		return data, true, nil
	}

	wa := man.byRole(RoleWeights)
	if len(wa) == 0 {
		return fmt.Errorf("manifest lists no weights")
	}
	data, err := read(wa[0])
	if err != nil {
		return err
	}
	var weights []weightEntry
	if err := json.Unmarshal(data, &weights); err != nil {
		return fmt.Errorf("parse weights: %w", err)
	}

	memberFiles := make(map[int]Artifact)
	for _, a := range man.byRole(RoleMember) {
		memberFiles[a.Index] = a
	}
	members := make([]Member, len(weights))
	for i, w := range weights {
		a, ok := memberFiles[i]
		if !ok {
			return fmt.Errorf("manifest lists no artifact for member %d (%s)", i, w.Ref)
		}
		data, err := read(a)
		if err != nil {
			return err
		}
		p, err := codec.Decode(data)
		if err != nil {
			return fmt.Errorf("member %s: %w", w.Ref, err)
		}
		members[i] = Member{Ref: w.Ref, Predictor: p, Weight: w.Weight}
	}
	if err := normalise(members); err != nil {
		return err
	}
	nOut, err := consistentOutputDim(members)
	if err != nil {
		return err
	}

	var results []Result
	if data, ok, err := optional(RoleResults); err != nil {
		return err
	} else if ok {
		if err := json.Unmarshal(data, &results); err != nil {
			return fmt.Errorf("parse results: %w", err)
		}
	}

	pipes := make(map[string]pipeline.Pipeline, 2)
	for _, role := range []string{RoleInputPipe, RoleOutputPipe} {
		data, ok, err := optional(role)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		p, err := pipeline.Unmarshal(data)
		if err != nil {
			return fmt.Errorf("%s: %w", role, err)
		}
		pipes[role] = p
	}

	var features []string
	if data, ok, err := optional(RoleFeatures); err != nil {
		return err
	} else if ok {
		if err := json.Unmarshal(data, &features); err != nil {
			return fmt.Errorf("parse features: %w", err)
		}
	}

	e.members = members
	e.results = results
	e.nOut = nOut
	e.inputPipe = pipes[RoleInputPipe]
	e.outputPipe = pipes[RoleOutputPipe]
	e.features = features
	e.state = StateLoaded
	logger.Info("Ensemble loaded", "dest", dest, "members", len(members), "n_out", nOut)
	return nil
}

// #endregion load

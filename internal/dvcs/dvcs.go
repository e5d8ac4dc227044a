// Package dvcs commits record changes to collection repositories using the
// git and git-annex executables.
package dvcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Actor is the person a commit is made on behalf of.
type Actor struct {
	Name  string
	Email string
}

// Result is the outcome of one commit command.
type Result struct {
	ExitCode int
	Status   string
}

// OK reports whether the command succeeded.
func (r Result) OK() bool { return r.ExitCode == 0 }

// Committer records metadata changes in a collection repository.
// A non-zero Result.ExitCode is a failed commit; a non-nil error means the
// command could not be run at all.
type Committer interface {
	CreateEntity(ctx context.Context, actor Actor, collectionPath, entityID string, changed, templates []string, agent string) (Result, error)
	UpdateEntity(ctx context.Context, actor Actor, collectionPath, entityID string, changed []string, agent string) (Result, error)
	AddFile(ctx context.Context, actor Actor, collectionPath, fileID string, changed, annexed []string, agent string) (Result, error)
	UpdateFile(ctx context.Context, actor Actor, collectionPath, fileID string, changed, annexed []string, agent string) (Result, error)
	// Tracked reports whether path is committed in the repository.
	Tracked(ctx context.Context, collectionPath, path string) (bool, error)
}

// Git runs git commands against on-disk repositories.
type Git struct {
	Binary  string
	Annex   bool
	Timeout time.Duration
}

// NewGit returns a Git committer. An empty binary means "git".
func NewGit(binary string, annex bool, timeout time.Duration) *Git {
	if binary == "" {
		binary = "git"
	}
	return &Git{Binary: binary, Annex: annex, Timeout: timeout}
}

// CreateEntity copies templates into the new entity directory, stages them
// with the changed paths and commits. A template named like one of the
// changed paths is skipped; the record already written there wins.
func (g *Git) CreateEntity(ctx context.Context, actor Actor, collectionPath, entityID string, changed, templates []string, agent string) (Result, error) {
	entityDir := filepath.Join(collectionPath, "files", entityID)
	paths := append([]string(nil), changed...)
	written := make(map[string]bool, len(changed))
	for _, p := range changed {
		if !filepath.IsAbs(p) {
			p = filepath.Join(collectionPath, p)
		}
		written[filepath.Clean(p)] = true
	}
	for _, tpl := range templates {
		dst := filepath.Join(entityDir, filepath.Base(tpl))
		if written[dst] {
			continue
		}
		if err := copyFile(tpl, dst); err != nil {
			return Result{}, fmt.Errorf("copy template %s: %w", tpl, err)
		}
		paths = append(paths, dst)
	}
	return g.commit(ctx, actor, collectionPath, paths, nil, "Initialized entity "+entityID, agent)
}

// UpdateEntity stages the changed paths and commits.
func (g *Git) UpdateEntity(ctx context.Context, actor Actor, collectionPath, entityID string, changed []string, agent string) (Result, error) {
	return g.commit(ctx, actor, collectionPath, changed, nil, "Updated entity file(s) "+entityID, agent)
}

// AddFile stages annexed binaries through git-annex (or plain git when annex
// is disabled), stages the metadata and commits.
func (g *Git) AddFile(ctx context.Context, actor Actor, collectionPath, fileID string, changed, annexed []string, agent string) (Result, error) {
	return g.commit(ctx, actor, collectionPath, changed, annexed, "Added entity file "+fileID, agent)
}

// UpdateFile restages a file's binary and metadata and commits. Staging an
// unchanged annexed binary is a no-op.
func (g *Git) UpdateFile(ctx context.Context, actor Actor, collectionPath, fileID string, changed, annexed []string, agent string) (Result, error) {
	return g.commit(ctx, actor, collectionPath, changed, annexed, "Updated entity file "+fileID, agent)
}

// Tracked runs git ls-files --error-unmatch on path.
func (g *Git) Tracked(ctx context.Context, collectionPath, path string) (bool, error) {
	rel, err := relPaths(collectionPath, []string{path})
	if err != nil {
		return false, err
	}
	var log strings.Builder
	res, err := g.run(ctx, collectionPath, &log, "ls-files", "--error-unmatch", "--", rel[0])
	if err != nil {
		return false, err
	}
	switch res.ExitCode {
	case 0:
		return true, nil
	case 1:
		return false, nil
	}
	return false, fmt.Errorf("%s ls-files %s: exit %d: %s", g.Binary, rel[0], res.ExitCode, res.Status)
}

func (g *Git) commit(ctx context.Context, actor Actor, repo string, changed, annexed []string, subject, agent string) (Result, error) {
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	rel, err := relPaths(repo, changed)
	if err != nil {
		return Result{}, err
	}
	relAnnex, err := relPaths(repo, annexed)
	if err != nil {
		return Result{}, err
	}

	var log strings.Builder
	if len(relAnnex) > 0 {
		args := append([]string{"add", "--"}, relAnnex...)
		if g.Annex {
			args = append([]string{"annex", "add"}, relAnnex...)
		}
		if res, err := g.run(ctx, repo, &log, args...); err != nil || !res.OK() {
			return res, err
		}
	}
	if len(rel) > 0 {
		if res, err := g.run(ctx, repo, &log, append([]string{"add", "--"}, rel...)...); err != nil || !res.OK() {
			return res, err
		}
	}

	msg := fmt.Sprintf("%s\n\n@agent: %s", subject, agent)
	author := fmt.Sprintf("%s <%s>", actor.Name, actor.Email)
	return g.run(ctx, repo, &log,
		"-c", "user.name="+actor.Name,
		"-c", "user.email="+actor.Email,
		"commit", "--author", author, "-m", msg,
	)
}

// run executes one git command. Output accumulates in log and is returned
// as the Result status.
func (g *Git) run(ctx context.Context, repo string, log *strings.Builder, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, g.Binary, append([]string{"-C", repo}, args...)...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	log.Write(out.Bytes())
	status := strings.TrimSpace(log.String())

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return Result{ExitCode: 0, Status: status}, nil
	case errors.As(err, &exitErr):
		return Result{ExitCode: exitErr.ExitCode(), Status: status}, nil
	default:
		return Result{ExitCode: -1, Status: status}, fmt.Errorf("%s %s: %w", g.Binary, args[0], err)
	}
}

func relPaths(repo string, paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			out = append(out, p)
			continue
		}
		r, err := filepath.Rel(repo, p)
		if err != nil || strings.HasPrefix(r, "..") {
			return nil, fmt.Errorf("path %s is outside repository %s", p, repo)
		}
		out = append(out, r)
	}
	return out, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

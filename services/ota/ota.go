// Package ota replaces the boot image when the source publishes a different
// version. One check runs per boot:
//
//	idle -> fetching -> version checked -> staged -> promoted -> restart
//	             \-> fetch_failed
//
// Promotion always runs after the fetch step, so a candidate staged by an
// interrupted boot is applied even when the source is unreachable.
package ota

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"sensornode-go/errcode"
	"sensornode-go/services/config"
	"sensornode-go/x/strx"
)

// State is where a check ended.
type State string

const (
	StateIdle          State = "idle"
	StateFetchFailed   State = "fetch_failed"
	StateNoVersion     State = "no_version"
	StateNotNewer      State = "not_newer"
	StateStaged        State = "staged"
	StateStageFailed   State = "stage_failed"
	StatePromoted      State = "promoted"
	StatePromoteFailed State = "promote_failed"
)

// MaxImage bounds the fetched document. Anything longer is refused whole.
const MaxImage = 4 << 20

// Result of one check.
type Result struct {
	State   State
	Version string // remote version when one was found
	Err     error
}

// Restart is true only after a successful promotion.
func (r Result) Restart() bool { return r.State == StatePromoted }

// Counter is told the final state of each check.
type Counter interface {
	OTACheck(state string)
}

// ExtractVersion finds the first line starting with marker and returns the
// text after its first "=", trimmed of spaces and double quotes.
func ExtractVersion(doc, marker string) (string, bool) {
	marker = strx.Coalesce(marker, config.DefaultMarker)
	for _, line := range strings.Split(doc, "\n") {
		if !strings.HasPrefix(line, marker) {
			continue
		}
		_, v, ok := strings.Cut(line, "=")
		if !ok {
			return "", false
		}
		return strx.Unquote(v), true
	}
	return "", false
}

// IsNewer is string inequality against the running version. A document
// without a version line is never newer.
func IsNewer(running, doc, marker string) bool {
	v, ok := ExtractVersion(doc, marker)
	return ok && v != running
}

// Manager runs the check against one source and one pair of slots.
type Manager struct {
	cfg     config.OTA
	running string
	store   Store
	client  *http.Client
	log     *slog.Logger
	limit   int64
	Counter Counter
}

func NewManager(cfg config.OTA, running string, store Store, client *http.Client, log *slog.Logger) *Manager {
	if client == nil {
		client = http.DefaultClient
	}
	return &Manager{cfg: cfg, running: running, store: store, client: client, log: log.With("svc", "ota"), limit: MaxImage}
}

// Check fetches, compares, stages and promotes. Every failure is logged and
// reported in the result; none of them requests a restart.
func (m *Manager) Check(ctx context.Context) Result {
	res := m.fetchAndStage(ctx)
	switch promoted, err := m.Promote(); {
	case err != nil:
		res = Result{State: StatePromoteFailed, Version: res.Version, Err: err}
	case promoted:
		res = Result{State: StatePromoted, Version: res.Version}
	}
	if m.Counter != nil {
		m.Counter.OTACheck(string(res.State))
	}
	return res
}

func (m *Manager) fetchAndStage(ctx context.Context) Result {
	m.log.Info("checking for update", "source", m.cfg.SourceURL, "running", m.running)
	doc, err := m.fetch(ctx)
	if err != nil {
		m.log.Error("fetch failed", "code", errcode.Of(err), "err", err)
		return Result{State: StateFetchFailed, Err: err}
	}

	v, ok := ExtractVersion(doc, m.cfg.Marker)
	if !ok {
		m.log.Info("no version line in source, nothing to do")
		return Result{State: StateNoVersion}
	}
	if v == m.running {
		m.log.Info("up to date", "version", v)
		return Result{State: StateNotNewer, Version: v}
	}

	m.log.Info("new version found", "version", v)
	if err := m.store.WriteFile(m.cfg.StagingPath, []byte(doc)); err != nil {
		err = errcode.Wrap(errcode.StageFailed, "ota.stage", err)
		m.log.Error("staging failed", "err", err)
		return Result{State: StateStageFailed, Version: v, Err: err}
	}
	m.log.Info("candidate staged", "path", m.cfg.StagingPath)
	return Result{State: StateStaged, Version: v}
}

func (m *Manager) fetch(ctx context.Context) (string, error) {
	const op = "ota.fetch"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.SourceURL, nil)
	if err != nil {
		return "", errcode.Wrap(errcode.InvalidConfig, op, err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return "", errcode.Wrap(errcode.Transport, op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", errcode.New(errcode.HTTPStatus, op, strconv.Itoa(resp.StatusCode))
	}
	if resp.ContentLength > m.limit {
		return "", errcode.New(errcode.TooLarge, op, strconv.FormatInt(resp.ContentLength, 10)+" bytes")
	}
	// One byte past the limit tells a full-size image from a cut one.
	b, err := io.ReadAll(io.LimitReader(resp.Body, m.limit+1))
	if err != nil {
		return "", errcode.Wrap(errcode.Transport, op, err)
	}
	if int64(len(b)) > m.limit {
		return "", errcode.New(errcode.TooLarge, op, "more than "+strconv.FormatInt(m.limit, 10)+" bytes")
	}
	return string(b), nil
}

// Promote moves a staged candidate into the boot slot. With no candidate it
// does nothing. Stores that cannot replace on rename lose the boot slot
// before the rename; the others never expose a missing boot slot.
func (m *Manager) Promote() (bool, error) {
	const op = "ota.promote"
	staged, err := m.store.Exists(m.cfg.StagingPath)
	if err != nil {
		err = errcode.Wrap(errcode.PromoteFailed, op, err)
		m.log.Error("promotion failed", "err", err)
		return false, err
	}
	if !staged {
		m.log.Debug("no candidate to apply")
		return false, nil
	}
	if !m.store.ReplacesOnRename() {
		if ok, _ := m.store.Exists(m.cfg.BootPath); ok {
			if err := m.store.Remove(m.cfg.BootPath); err != nil {
				err = errcode.Wrap(errcode.PromoteFailed, op, err)
				m.log.Error("promotion failed", "err", err)
				return false, err
			}
		}
	}
	if err := m.store.Rename(m.cfg.StagingPath, m.cfg.BootPath); err != nil {
		err = errcode.Wrap(errcode.PromoteFailed, op, err)
		m.log.Error("promotion failed", "err", err)
		return false, err
	}
	m.log.Info("candidate applied, restarting", "path", m.cfg.BootPath)
	return true, nil
}

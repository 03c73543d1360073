package storage

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/sirupsen/logrus"

	"github.com/pimotion/motionrec/internal/logging"
)

// bytesPerMB matches the decimal megabytes used for the threshold
const bytesPerMB = 1000 * 1000

// Probe reports free bytes on the volume holding path
type Probe interface {
	FreeBytes(path string) (uint64, error)
}

// DiskProbe reads filesystem statistics through gopsutil
type DiskProbe struct{}

func (DiskProbe) FreeBytes(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// Result summarises one reclamation pass
type Result struct {
	Removed []string
	Failed  []string
	// FreeMB is the last successful measurement, zero if none was taken
	FreeMB uint64
	// Satisfied reports whether the threshold held when the pass ended
	Satisfied bool
}

// Reclaimer deletes the oldest recordings until enough space is free.
// Recordings are named so that lexicographic order is chronological order.
type Reclaimer struct {
	probe  Probe
	remove func(string) error
	log    *logrus.Entry
}

func NewReclaimer(probe Probe) *Reclaimer {
	if probe == nil {
		probe = DiskProbe{}
	}
	return &Reclaimer{
		probe:  probe,
		remove: os.Remove,
		log:    logging.NewLogger("storage"),
	}
}

// EnsureFreeSpace removes entries of dir in name order until at least
// minFreeMB megabytes are free or nothing is left to remove. Hidden entries
// are never touched. Removal failures are logged and skipped; if free space
// cannot be measured nothing is removed.
func (r *Reclaimer) EnsureFreeSpace(dir string, minFreeMB uint64) Result {
	var res Result
	log := r.log.WithField("dir", dir)

	if _, err := os.Stat(dir); err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Warn("cannot access record store")
		}
		return res
	}

	free, ok := r.freeMB(log, dir)
	if !ok {
		return res
	}
	res.FreeMB = free
	if free >= minFreeMB {
		res.Satisfied = true
		return res
	}

	names, err := listRecordings(dir)
	if err != nil {
		log.WithError(err).Warn("failed to list record store")
		return res
	}

	log.WithFields(logrus.Fields{
		"free_mb":     free,
		"min_free_mb": minFreeMB,
		"candidates":  len(names),
	}).Info("free space below threshold, reclaiming")

	for _, name := range names {
		path := filepath.Join(dir, name)
		size := entrySize(path)
		if err := r.remove(path); err != nil {
			log.WithError(err).WithField("file", name).Warn("failed to remove recording")
			res.Failed = append(res.Failed, name)
		} else {
			log.WithFields(logrus.Fields{"file": name, "size": humanize.Bytes(size)}).Info("removed recording")
			res.Removed = append(res.Removed, name)
		}

		free, ok = r.freeMB(log, dir)
		if !ok {
			return res
		}
		res.FreeMB = free
		if free >= minFreeMB {
			res.Satisfied = true
			break
		}
	}

	if !res.Satisfied {
		log.WithField("free_mb", res.FreeMB).Warn("record store exhausted, threshold still not met")
	}
	return res
}

func (r *Reclaimer) freeMB(log *logrus.Entry, dir string) (uint64, bool) {
	free, err := r.probe.FreeBytes(dir)
	if err != nil {
		log.WithError(err).Warn("cannot read filesystem statistics, skipping reclamation")
		return 0, false
	}
	return free / bytesPerMB, true
}

// listRecordings returns the non-hidden entry names of dir, sorted ascending
func listRecordings(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func entrySize(path string) uint64 {
	info, err := os.Lstat(path)
	if err != nil || info.Size() < 0 {
		return 0
	}
	return uint64(info.Size())
}

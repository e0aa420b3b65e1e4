package dataset

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/pkg/errors"
)

var (
	t1Regexp    = regexp.MustCompile(`^(.+)_t1\.npy$`)
	shardRegexp = regexp.MustCompile(`^shard-[0-9]{6,}\.tar$`)
)

// DiscoverTriples returns every complete <key>_t1.npy, <key>_t2.npy,
// <key>_seg.npy group beneath root, sorted by t1 path.
func DiscoverTriples(root string) ([]Triple, error) {
	var triples []Triple
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		m := t1Regexp.FindStringSubmatch(d.Name())
		if m == nil {
			return nil
		}
		dir := filepath.Dir(path)
		tr := Triple{
			T1:  path,
			T2:  filepath.Join(dir, m[1]+"_t2.npy"),
			Seg: filepath.Join(dir, m[1]+"_seg.npy"),
		}
		if !exists(tr.T2) || !exists(tr.Seg) {
			return errors.Errorf("incomplete sample %s", path)
		}
		triples = append(triples, tr)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "discover triples")
	}
	sort.Slice(triples, func(i, j int) bool { return triples[i].T1 < triples[j].T1 })
	return triples, nil
}

// DiscoverShards returns paths to shard TAR files beneath root.
func DiscoverShards(root string) ([]string, error) {
	entries := make([]string, 0)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if shardRegexp.MatchString(d.Name()) {
			entries = append(entries, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "discover shards")
	}
	sort.Strings(entries)
	return entries, nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

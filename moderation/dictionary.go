package moderation

import (
	"bufio"
	"bytes"
	"chat-relay/errors"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// Dictionary is the merged content of a censored words directory.
type Dictionary struct {
	Words     []string
	Languages []string
}

// DictionaryLoader reads one word list per language from a directory,
// "fr.txt" holding the French words, one per line.
type DictionaryLoader struct {
	fs fs.FS
}

func NewDictionaryLoader(f fs.FS) *DictionaryLoader {
	return &DictionaryLoader{fs: f}
}

// Load merges every .txt file under dir into a deduplicated word list.
func (l *DictionaryLoader) Load(dir string) (Dictionary, error) {
	entries, err := fs.ReadDir(l.fs, dir)
	if err != nil {
		return Dictionary{}, err
	}

	var languages []string
	unique := make(map[string]struct{})

	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".txt" {
			continue
		}
		languages = append(languages, strings.TrimSuffix(entry.Name(), ".txt"))

		data, err := fs.ReadFile(l.fs, path.Join(dir, entry.Name()))
		if err != nil {
			return Dictionary{}, err
		}

		// Scanner copes with \r\n line endings
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				unique[line] = struct{}{}
			}
		}
		if err := scanner.Err(); err != nil {
			return Dictionary{}, err
		}
	}

	if len(unique) == 0 {
		return Dictionary{}, errors.ErrEmptyWords
	}

	words := lo.Keys(unique)
	sort.Strings(words)
	return Dictionary{Words: words, Languages: languages}, nil
}

package skill

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	markdownManifest = "SKILL.md"
	tomlManifest     = "skill.toml"
)

// Discover walks root and returns every skill directory found, sorted by
// relative path. A skill directory carries a SKILL.md (optionally with YAML
// frontmatter) or a skill.toml manifest. Directories with invalid manifests
// are skipped, not fatal: one broken skill must not hide a whole source.
func Discover(root string) ([]Skill, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("DISC_ROOT: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("DISC_ROOT: %s is not a directory", root)
	}

	var out []Skill
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if name := d.Name(); path != root && strings.HasPrefix(name, ".") {
			return filepath.SkipDir
		}
		sk, found, perr := parseDir(root, path)
		if !found {
			return nil
		}
		if perr != nil {
			log.Debug().Err(perr).Str("dir", path).Msg("skipping skill with invalid manifest")
			return filepath.SkipDir
		}
		out = append(out, sk)
		// Skills do not nest.
		return filepath.SkipDir
	})
	if err != nil {
		return nil, fmt.Errorf("DISC_WALK: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelativePath < out[j].RelativePath })
	return out, nil
}

// manifest is the decode target shared by both manifest formats.
type manifest struct {
	Name          string            `yaml:"name" toml:"name"`
	Description   string            `yaml:"description" toml:"description"`
	License       string            `yaml:"license" toml:"license"`
	Compatibility *Compatibility    `yaml:"compatibility" toml:"compatibility"`
	Metadata      map[string]string `yaml:"metadata" toml:"metadata"`
}

func parseDir(root, dir string) (Skill, bool, error) {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return Skill{}, false, err
	}
	rel = filepath.ToSlash(rel)

	if blob, err := os.ReadFile(filepath.Join(dir, tomlManifest)); err == nil {
		var m manifest
		if err := toml.Unmarshal(blob, &m); err != nil {
			return Skill{}, true, fmt.Errorf("DISC_MANIFEST_TOML: %w", err)
		}
		return fromManifest(m, dir, rel), true, nil
	}

	mdPath := filepath.Join(dir, markdownManifest)
	blob, err := os.ReadFile(mdPath)
	if err != nil {
		return Skill{}, false, nil
	}
	front, body := splitFrontmatter(blob)
	var m manifest
	if front != nil {
		if err := yaml.Unmarshal(front, &m); err != nil {
			return Skill{}, true, fmt.Errorf("DISC_MANIFEST_YAML: %w", err)
		}
	}
	if m.Description == "" {
		m.Description = firstHeading(body)
	}
	return fromManifest(m, dir, rel), true, nil
}

func fromManifest(m manifest, dir, rel string) Skill {
	name := m.Name
	if name == "" {
		name = filepath.Base(dir)
	}
	return Skill{
		Name:          name,
		Description:   m.Description,
		RelativePath:  rel,
		License:       m.License,
		Compatibility: m.Compatibility,
		Metadata:      m.Metadata,
	}
}

// splitFrontmatter separates a leading "---" YAML block from the body.
// Returns a nil frontmatter when the document has none.
func splitFrontmatter(blob []byte) (front, body []byte) {
	const fence = "---"
	trimmed := bytes.TrimPrefix(blob, []byte("\ufeff"))
	if !bytes.HasPrefix(trimmed, []byte(fence+"\n")) && !bytes.HasPrefix(trimmed, []byte(fence+"\r\n")) {
		return nil, blob
	}
	rest := trimmed[len(fence):]
	rest = bytes.TrimLeft(rest, "\r\n")
	idx := bytes.Index(rest, []byte("\n"+fence))
	if idx < 0 {
		return nil, blob
	}
	front = rest[:idx]
	body = rest[idx+len("\n"+fence):]
	return front, body
}

func firstHeading(body []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "# ") {
			return strings.TrimPrefix(line, "# ")
		}
	}
	return ""
}

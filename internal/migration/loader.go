package migration

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
)

// VersionLayout is the time layout of migration versions.
const VersionLayout = "20060102150405"

var (
	ErrInvalidMigration = errors.New("invalid migration")

	fileRe    = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.(up|down)\.sql$`)
	versionRe = regexp.MustCompile(`^\d{14}$`)
	nameRe    = regexp.MustCompile(`[^a-z0-9]+`)
)

type sqlPair struct {
	version, name string
	up, down      string
}

// Load reads the <version>_<name>.up.sql / .down.sql pairs in dir. A missing
// directory holds no migrations. Files are checked the way Validate checks
// them; every problem is reported, not just the first.
func Load(dir string) ([]*Migration, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var problems []error
	pairs := make(map[string]*sqlPair)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		m := fileRe.FindStringSubmatch(e.Name())
		if m == nil {
			problems = append(problems, fmt.Errorf("%w: %s does not match <version>_<name>.(up|down).sql", ErrInvalidMigration, e.Name()))
			continue
		}
		version, name, direction := m[1], m[2], m[3]
		if _, err := time.Parse(VersionLayout, version); err != nil {
			problems = append(problems, fmt.Errorf("%w: %s has a malformed version", ErrInvalidMigration, e.Name()))
			continue
		}

		p, ok := pairs[version]
		if !ok {
			p = &sqlPair{version: version, name: name}
			pairs[version] = p
		}
		if p.name != name {
			problems = append(problems, fmt.Errorf("%w: version %s is used by %q and %q", ErrInvalidMigration, version, p.name, name))
			continue
		}
		path := filepath.Join(dir, e.Name())
		if direction == "up" {
			p.up = path
		} else {
			p.down = path
		}
	}

	versions := make([]string, 0, len(pairs))
	for v := range pairs {
		versions = append(versions, v)
	}
	sort.Strings(versions)

	migrations := make([]*Migration, 0, len(pairs))
	for _, v := range versions {
		p := pairs[v]
		if p.up == "" || p.down == "" {
			problems = append(problems, fmt.Errorf("%w: %s_%s needs both an up and a down file", ErrInvalidMigration, p.version, p.name))
			continue
		}
		up, err := readStatements(p.up)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		down, err := readStatements(p.down)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		migrations = append(migrations, &Migration{
			Version: p.version,
			Name:    p.name,
			Source:  p.up,
			Up:      execAll(up),
			Down:    execAll(down),
		})
	}
	if len(problems) > 0 {
		return nil, errors.Join(problems...)
	}
	return migrations, nil
}

// Validate checks a set of migrations for well-formed and unique versions.
func Validate(migrations []*Migration) error {
	var problems []error
	seen := make(map[string]string)
	for _, m := range migrations {
		if !versionRe.MatchString(m.Version) {
			problems = append(problems, fmt.Errorf("%w: version %q of %s is not 14 digits", ErrInvalidMigration, m.Version, m.Name))
		}
		if other, dup := seen[m.Version]; dup {
			problems = append(problems, fmt.Errorf("%w: version %s is used by %s and %s", ErrInvalidMigration, m.Version, other, m.Source))
		}
		seen[m.Version] = m.Source
		if m.Up == nil || m.Down == nil {
			problems = append(problems, fmt.Errorf("%w: %s_%s has no down step", ErrInvalidMigration, m.Version, m.Name))
		}
	}
	return errors.Join(problems...)
}

func readStatements(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	stmts, err := SplitStatements(string(content))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMigration, filepath.Base(path), err)
	}
	return stmts, nil
}

func execAll(stmts []string) func(*gorm.DB) error {
	return func(db *gorm.DB) error {
		for i, stmt := range stmts {
			if err := db.Exec(stmt).Error; err != nil {
				return fmt.Errorf("statement %d: %w", i+1, err)
			}
		}
		return nil
	}
}

// SplitStatements splits an SQL script on semicolons outside quotes,
// comments and dollar-quoted bodies. Empty statements are dropped.
func SplitStatements(script string) ([]string, error) {
	var (
		stmts []string
		cur   strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" && !onlyComments(s) {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(script); {
		c := script[i]
		switch {
		case c == '\'' || c == '"':
			end := closing(script, i+1, c)
			if end < 0 {
				return nil, fmt.Errorf("unterminated %c quote", c)
			}
			cur.WriteString(script[i : end+1])
			i = end + 1
		case strings.HasPrefix(script[i:], "--"):
			end := strings.IndexByte(script[i:], '\n')
			if end < 0 {
				end = len(script) - i
			}
			cur.WriteString(script[i : i+end])
			i += end
		case strings.HasPrefix(script[i:], "/*"):
			end := strings.Index(script[i+2:], "*/")
			if end < 0 {
				return nil, errors.New("unterminated block comment")
			}
			cur.WriteString(script[i : i+end+4])
			i += end + 4
		case c == '$':
			tag := dollarTag(script[i:])
			if tag == "" {
				cur.WriteByte(c)
				i++
				continue
			}
			end := strings.Index(script[i+len(tag):], tag)
			if end < 0 {
				return nil, fmt.Errorf("unterminated %s body", tag)
			}
			n := len(tag) + end + len(tag)
			cur.WriteString(script[i : i+n])
			i += n
		case c == ';':
			flush()
			i++
		default:
			cur.WriteByte(c)
			i++
		}
	}
	flush()
	return stmts, nil
}

// closing finds the quote ending a literal that starts at from; doubled
// quotes are escapes.
func closing(s string, from int, q byte) int {
	for i := from; i < len(s); i++ {
		if s[i] != q {
			continue
		}
		if i+1 < len(s) && s[i+1] == q {
			i++
			continue
		}
		return i
	}
	return -1
}

// dollarTag returns the $tag$ opening s, or "".
func dollarTag(s string) string {
	for i := 1; i < len(s); i++ {
		switch c := s[i]; {
		case c == '$':
			return s[:i+1]
		case c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || i > 1 && c >= '0' && c <= '9':
		default:
			return ""
		}
	}
	return ""
}

func onlyComments(s string) bool {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return false
		}
	}
	return true
}

// FileName formats the name of one side of a migration.
func FileName(version, name, direction string) string {
	return fmt.Sprintf("%s_%s.%s.sql", version, name, direction)
}

// Slug lowercases name and joins its words with underscores.
func Slug(name string) string {
	return strings.Trim(nameRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

// CreateFiles writes a new up/down pair named after name and versioned at
// now, and returns their paths.
func CreateFiles(dir, name string, now time.Time, up, down string) (string, string, error) {
	slug := Slug(name)
	if slug == "" {
		return "", "", fmt.Errorf("%w: migration name %q has no letters or digits", ErrInvalidMigration, name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create migrations directory: %w", err)
	}

	version := now.UTC().Format(VersionLayout)
	upPath := filepath.Join(dir, FileName(version, slug, "up"))
	downPath := filepath.Join(dir, FileName(version, slug, "down"))
	for _, p := range []string{upPath, downPath} {
		if _, err := os.Stat(p); err == nil {
			return "", "", fmt.Errorf("%s already exists", p)
		}
	}

	header := fmt.Sprintf("-- %s %s\n", version, slug)
	if err := os.WriteFile(upPath, []byte(header+up), 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write migration file: %w", err)
	}
	if err := os.WriteFile(downPath, []byte(header+down), 0o644); err != nil {
		_ = os.Remove(upPath)
		return "", "", fmt.Errorf("failed to write migration file: %w", err)
	}
	return upPath, downPath, nil
}

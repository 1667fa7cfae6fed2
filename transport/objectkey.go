package transport

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"
	"time"
	"unicode/utf8"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/photoshelf/go-uploadutils/payload"
)

// DefaultKeyTemplate places photos under a per-day prefix.
const DefaultKeyTemplate = "photos/{{ .Date }}/{{ .Name }}"

const maxKeyLength = 1024

// KeyTemplate evaluates object keys for uploaded photos.
type KeyTemplate struct {
	text         string
	tmpl         *template.Template
	needChecksum bool
	envRepo      env.Repository
	logger       log.Logger
	now          func() time.Time
}

type keyInventory struct {
	Name     string
	Base     string
	Ext      string
	Date     string
	Size     int64
	Checksum string
}

// NewKeyTemplate parses a text/template key. Available fields:
// .Name, .Base (name without extension), .Ext, .Date (UTC, YYYY-MM-DD), .Size and .Checksum (SHA-256).
// The getenv function reads environment variables.
func NewKeyTemplate(text string, envRepo env.Repository, logger log.Logger) (*KeyTemplate, error) {
	if strings.TrimSpace(text) == "" {
		text = DefaultKeyTemplate
	}

	k := &KeyTemplate{
		text:         text,
		needChecksum: strings.Contains(text, ".Checksum"),
		envRepo:      envRepo,
		logger:       logger,
		now:          time.Now,
	}

	funcMap := template.FuncMap{
		"getenv": k.getEnvVar,
	}
	tmpl, err := template.New("key").Funcs(funcMap).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("invalid template: %w", err)
	}
	k.tmpl = tmpl

	return k, nil
}

// Evaluate returns the object key for the payload. checksum may be empty,
// in which case it is computed only if the template references it.
func (k *KeyTemplate) Evaluate(p payload.Payload, checksum string) (string, error) {
	if checksum == "" && k.needChecksum {
		var err error
		checksum, err = payload.Checksum(p)
		if err != nil {
			return "", fmt.Errorf("checksum: %w", err)
		}
	}

	name := p.Name()
	ext := filepath.Ext(name)
	inventory := keyInventory{
		Name:     name,
		Base:     strings.TrimSuffix(name, ext),
		Ext:      strings.TrimPrefix(ext, "."),
		Date:     k.now().UTC().Format("2006-01-02"),
		Size:     p.Size(),
		Checksum: checksum,
	}
	if inventory.Name == "" {
		k.logger.Warnf("Template variable .Name is not defined")
	}

	resultBuffer := bytes.Buffer{}
	if err := k.tmpl.Execute(&resultBuffer, inventory); err != nil {
		return "", err
	}

	key := strings.TrimPrefix(resultBuffer.String(), "/")
	if key == "" {
		return "", fmt.Errorf("template %q evaluated to an empty key", k.text)
	}
	if len(key) > maxKeyLength {
		k.logger.Warnf("Object key is too long, truncating it to the first %d characters", maxKeyLength)
		key = key[:maxKeyLength]
		for !utf8.ValidString(key) {
			key = key[:len(key)-1]
		}
	}

	return key, nil
}

func (k *KeyTemplate) getEnvVar(key string) string {
	return k.envRepo.Get(key)
}

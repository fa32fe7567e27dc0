// Package objectkey builds the destination key for uploaded objects.
//
// Keys are Hive-style partition paths so downstream consumers (Athena,
// Trino, plain prefix listing) can slice uploads by time and origin host:
//
//	year=2024/month=01/day=15/hour=10/minute=30/second=00/hostname=web-1/uuid=<token>/app.log
package objectkey

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Generator produces object keys. The zero value is not usable; use
// NewGenerator.
type Generator struct {
	hostname string

	// Injectable for tests.
	now      func() time.Time
	newToken func() string
}

// NewGenerator creates a key generator. hostname may be empty, in which
// case no hostname segment is emitted.
func NewGenerator(hostname string) *Generator {
	return &Generator{
		hostname: hostname,
		now:      func() time.Time { return time.Now().UTC() },
		newToken: func() string { return uuid.New().String() },
	}
}

// Key builds the object key for a single upload attempt. filename may be a
// full local path; only its base name ends up in the key. An empty filename
// omits the trailing segment.
//
// Every call draws a fresh random token, so retried uploads of the same
// file never collide in the bucket.
func (g *Generator) Key(filename string) string {
	t := g.now()

	fields := []string{
		fmt.Sprintf("year=%04d", t.Year()),
		fmt.Sprintf("month=%02d", int(t.Month())),
		fmt.Sprintf("day=%02d", t.Day()),
		fmt.Sprintf("hour=%02d", t.Hour()),
		fmt.Sprintf("minute=%02d", t.Minute()),
		fmt.Sprintf("second=%02d", t.Second()),
	}

	if g.hostname != "" {
		fields = append(fields, "hostname="+g.hostname)
	}

	fields = append(fields, "uuid="+g.newToken())

	if filename != "" {
		fields = append(fields, filepath.Base(filename))
	}

	return strings.Join(fields, "/")
}

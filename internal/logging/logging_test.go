package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestFrom_defaultsToNoop(t *testing.T) {
	log := From(context.Background())
	require.Equal(t, Noop, log)
	log.Info("should not panic", F("k", "v")) // exercises the no-op path
}

func TestNewContext_roundTrips(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.SetOutput(&buf)
	base.SetFormatter(&logrus.JSONFormatter{})

	log := NewLogrus(logrus.NewEntry(base))
	ctx := NewContext(context.Background(), log)

	From(ctx).Info("hello", F("module", "math"))

	require.Contains(t, buf.String(), `"msg":"hello"`)
	require.Contains(t, buf.String(), `"module":"math"`)
}

func TestWith_mergesFields(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.SetOutput(&buf)
	base.SetFormatter(&logrus.JSONFormatter{})

	log := NewLogrus(logrus.NewEntry(base)).With(F("store", "s1"))
	log.Warn("trap", F("code", 3))

	require.Contains(t, buf.String(), `"store":"s1"`)
	require.Contains(t, buf.String(), `"code":3`)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/redpanda-data/benthos/v4/public/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twinfer/cbin-plugin/pkg/cbin"
	"github.com/twinfer/cbin-plugin/testutil"
)

const settingsText = "[Settings]\nVolume = 5, 1.5, Loud\n\n"

func newTestProcessor(t *testing.T, yamlConf string) *CBINProcessor {
	t.Helper()
	pConf, err := cbinProcessorConfig().ParseYAML(yamlConf, nil)
	require.NoError(t, err)
	processor, err := newCBINProcessorFromConfig(pConf, service.MockResources())
	require.NoError(t, err)
	return processor
}

func encodedSettings(t *testing.T) []byte {
	t.Helper()
	doc, err := cbin.ParseText(settingsText)
	require.NoError(t, err)
	data, err := cbin.Encode(doc)
	require.NoError(t, err)
	return data
}

func processOne(t *testing.T, p *CBINProcessor, msg *service.Message) *service.Message {
	t.Helper()
	batch, err := p.Process(context.Background(), msg)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	return batch[0]
}

func TestCBINProcessor_Decode(t *testing.T) {
	t.Run("structured", func(t *testing.T) {
		p := newTestProcessor(t, "operation: decode\nformat: structured")

		in := service.NewMessage(encodedSettings(t))
		in.MetaSet("source", "settings.cbin")
		out := processOne(t, p, in)
		require.NoError(t, out.GetError())

		structured, err := out.AsStructured()
		require.NoError(t, err)
		m := structured.(map[string]any)
		assert.Equal(t, true, m["success"])
		sections := m["sections"].([]any)
		require.Len(t, sections, 1)
		assert.Equal(t, "Settings", sections[0].(map[string]any)["title"])

		v, ok := out.MetaGet("source")
		assert.True(t, ok)
		assert.Equal(t, "settings.cbin", v)
		v, _ = out.MetaGet("cbin_success")
		assert.Equal(t, "true", v)
		v, _ = out.MetaGet("cbin_token_count")
		assert.Equal(t, "3", v)
		v, _ = out.MetaGet("cbin_sections")
		assert.Equal(t, "1", v)
	})

	t.Run("text", func(t *testing.T) {
		p := newTestProcessor(t, "operation: decode\nformat: text")

		out := processOne(t, p, service.NewMessage(encodedSettings(t)))
		require.NoError(t, out.GetError())
		text, err := out.AsBytes()
		require.NoError(t, err)
		assert.Equal(t, settingsText, string(text))
	})

	t.Run("defaults to structured decode", func(t *testing.T) {
		p := newTestProcessor(t, "{}")
		assert.Equal(t, CBINConfig{Operation: opDecode, Format: formatStructured}, p.config)
	})

	t.Run("partially decoded", func(t *testing.T) {
		p := newTestProcessor(t, "format: text")
		body := testutil.NewBodyBuilder(t).Int32(2).Record(1, 0).Bytes()
		data := testutil.File(t, body, len(body), 0, cbin.DefaultKey())

		out := processOne(t, p, service.NewMessage(data))
		require.NoError(t, out.GetError())
		v, _ := out.MetaGet("cbin_success")
		assert.Equal(t, "false", v)
	})
}

func TestCBINProcessor_DecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		wantErr string
	}{
		{name: "empty", input: nil, wantErr: "empty binary data"},
		{name: "not a container", input: []byte("plain text, definitely not a CBIN file"), wantErr: "not a CBIN container"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProcessor(t, "operation: decode")
			out := processOne(t, p, service.NewMessage(tt.input))
			require.Error(t, out.GetError())
			assert.Contains(t, out.GetError().Error(), tt.wantErr)
		})
	}
}

func TestCBINProcessor_Encode(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		p := newTestProcessor(t, "operation: encode\nformat: text")

		out := processOne(t, p, service.NewMessage([]byte(settingsText)))
		require.NoError(t, out.GetError())
		data, err := out.AsBytes()
		require.NoError(t, err)
		assert.Equal(t, encodedSettings(t), data)

		v, _ := out.MetaGet("cbin_token_count")
		assert.Equal(t, "3", v)
	})

	t.Run("structured from JSON", func(t *testing.T) {
		doc, err := cbin.ParseText(settingsText)
		require.NoError(t, err)
		raw, err := json.Marshal(doc.ToMap())
		require.NoError(t, err)

		p := newTestProcessor(t, "operation: encode\nformat: structured")
		out := processOne(t, p, service.NewMessage(raw))
		require.NoError(t, out.GetError())
		data, err := out.AsBytes()
		require.NoError(t, err)
		assert.Equal(t, encodedSettings(t), data)
	})

	t.Run("decode then encode", func(t *testing.T) {
		decoder := newTestProcessor(t, "operation: decode")
		encoder := newTestProcessor(t, "operation: encode")

		decoded := processOne(t, decoder, service.NewMessage(encodedSettings(t)))
		require.NoError(t, decoded.GetError())
		encoded := processOne(t, encoder, decoded)
		require.NoError(t, encoded.GetError())

		data, err := encoded.AsBytes()
		require.NoError(t, err)
		assert.Equal(t, encodedSettings(t), data)
	})

	t.Run("custom key and placeholders", func(t *testing.T) {
		p := newTestProcessor(t, "operation: encode\nformat: text\nkey: \"0102\"\nopaque_field: 7\nopaque_trailer: \"AABBCCDD\"")

		out := processOne(t, p, service.NewMessage([]byte(settingsText)))
		require.NoError(t, out.GetError())
		data, err := out.AsBytes()
		require.NoError(t, err)

		doc, err := cbin.Decode(data, cbin.WithKey([]byte{1, 2}))
		require.NoError(t, err)
		assert.Equal(t, settingsText, cbin.ToText(doc))
		assert.Equal(t, int32(7), doc.Header.OpaqueField)
		assert.Equal(t, [4]byte{0xAA, 0xBB, 0xCC, 0xDD}, doc.Header.OpaqueTrailer)
	})
}

func TestCBINProcessor_EncodeErrors(t *testing.T) {
	t.Run("text syntax error", func(t *testing.T) {
		p := newTestProcessor(t, "operation: encode\nformat: text")
		out := processOne(t, p, service.NewMessage([]byte("Orphan = 1\n")))
		require.Error(t, out.GetError())
		assert.Contains(t, out.GetError().Error(), "line 1")
	})

	t.Run("structured not an object", func(t *testing.T) {
		p := newTestProcessor(t, "operation: encode")
		out := processOne(t, p, service.NewMessage([]byte(`[1, 2, 3]`)))
		require.Error(t, out.GetError())
		assert.Contains(t, out.GetError().Error(), "expected object")
	})

	t.Run("structured bad value", func(t *testing.T) {
		p := newTestProcessor(t, "operation: encode")
		in := `{"sections": [{"title": "S", "keys": [{"title": "K", "values": [{"type": "int", "value": 1.5}]}]}]}`
		out := processOne(t, p, service.NewMessage([]byte(in)))
		require.Error(t, out.GetError())
		assert.Contains(t, out.GetError().Error(), "not an integer")
	})
}

func TestCBINProcessor_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		conf    string
		wantErr string
	}{
		{name: "bad key", conf: `key: "xyz"`, wantErr: "key"},
		{name: "empty key", conf: `key: ""`, wantErr: "key"},
		{name: "short trailer", conf: `opaque_trailer: "AABB"`, wantErr: "opaque_trailer"},
		{name: "opaque field overflow", conf: fmt.Sprintf("opaque_field: %d", int64(1)<<40), wantErr: "opaque_field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pConf, err := cbinProcessorConfig().ParseYAML(tt.conf, nil)
			require.NoError(t, err)
			_, err = newCBINProcessorFromConfig(pConf, service.MockResources())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestServiceHandler(t *testing.T) {
	logger := newSlogLogger(service.MockResources().Logger())
	assert.NotPanics(t, func() {
		logger.With("component", "codec").WithGroup("decode").Warn("Recovered from CBIN record error", "offset", "0x28")
		logger.Debug("Decoded CBIN sections")
	})
}

package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redpanda-data/benthos/v4/public/service"
	"github.com/twinfer/cbin-plugin/pkg/cbin"

	_ "github.com/redpanda-data/benthos/v4/public/components/io"
	_ "github.com/redpanda-data/benthos/v4/public/components/pure"
)

// Processor operations and formats.
const (
	opDecode = "decode"
	opEncode = "encode"

	formatText       = "text"
	formatStructured = "structured"
)

// CBINProcessor is a Benthos processor that decodes CBIN files into text or
// structured documents and encodes them back.
type CBINProcessor struct {
	config     CBINConfig
	codec      *cbin.Codec
	logger     *service.Logger
	mDecoded   *service.MetricCounter
	mEncoded   *service.MetricCounter
	mRecovered *service.MetricCounter
	mErrors    *service.MetricCounter
}

// CBINConfig contains configuration parameters for the CBIN processor.
type CBINConfig struct {
	Operation string `json:"operation" yaml:"operation"`
	Format    string `json:"format" yaml:"format"`
}

func init() {
	err := service.RegisterProcessor(
		"cbin",
		cbinProcessorConfig(),
		func(conf *service.ParsedConfig, mgr *service.Resources) (service.Processor, error) {
			return newCBINProcessorFromConfig(conf, mgr)
		},
	)
	if err != nil {
		panic(err)
	}
}

func main() {
	service.RunCLI(context.Background())
}

// cbinProcessorConfig returns a config spec for a cbin processor.
func cbinProcessorConfig() *service.ConfigSpec {
	return service.NewConfigSpec().
		Summary("Decodes or encodes CBIN configuration files.").
		Description("Decoding decrypts a CBIN file and emits either its INI-like text form or a structured document. " +
			"Encoding accepts either form and emits a complete encrypted CBIN file. " +
			"Files that decode only partially are passed on with `cbin_success` set to `false`.").
		Field(service.NewStringEnumField("operation", opDecode, opEncode).
			Description("Whether to decode CBIN bytes or encode a document into CBIN bytes.").
			Default(opDecode)).
		Field(service.NewStringEnumField("format", formatText, formatStructured).
			Description("Representation of the decoded document: INI-like `text` or a `structured` object.").
			Default(formatStructured)).
		Field(service.NewStringField("key").
			Description("XOR key as hex.").
			Default(cbin.DefaultKeyHex).
			Advanced()).
		Field(service.NewIntField("opaque_field").
			Description("Header field written when encoding a document that carries no header.").
			Default(int(cbin.DefaultOpaqueField)).
			Advanced()).
		Field(service.NewStringField("opaque_trailer").
			Description("Header trailer, as 4 hex bytes, written when encoding a document that carries no header.").
			Default(strings.ToUpper(hex.EncodeToString(cbin.DefaultOpaqueTrailer[:]))).
			Advanced()).
		Version("0.1.0")
}

// newCBINProcessorFromConfig creates a new CBINProcessor from a parsed config.
func newCBINProcessorFromConfig(conf *service.ParsedConfig, mgr *service.Resources) (*CBINProcessor, error) {
	operation, err := conf.FieldString("operation")
	if err != nil {
		return nil, err
	}
	format, err := conf.FieldString("format")
	if err != nil {
		return nil, err
	}
	keyHex, err := conf.FieldString("key")
	if err != nil {
		return nil, err
	}
	opaqueField, err := conf.FieldInt("opaque_field")
	if err != nil {
		return nil, err
	}
	trailerHex, err := conf.FieldString("opaque_trailer")
	if err != nil {
		return nil, err
	}

	switch operation {
	case opDecode, opEncode:
	default:
		return nil, fmt.Errorf("unknown operation %q", operation)
	}
	switch format {
	case formatText, formatStructured:
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}

	key, err := cbin.ParseKey(keyHex)
	if err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}
	trailer, err := hex.DecodeString(trailerHex)
	if err != nil || len(trailer) != 4 {
		return nil, fmt.Errorf("opaque_trailer: expected 4 hex bytes, got %q", trailerHex)
	}
	if int64(opaqueField) != int64(int32(opaqueField)) {
		return nil, fmt.Errorf("opaque_field: %d does not fit in 32 bits", opaqueField)
	}

	logger := mgr.Logger()
	metrics := mgr.Metrics()

	codec := cbin.NewCodec(
		cbin.WithKey(key),
		cbin.WithOpaqueField(int32(opaqueField)),
		cbin.WithOpaqueTrailer([4]byte(trailer)),
		cbin.WithLogger(newSlogLogger(logger)),
	)

	return &CBINProcessor{
		config:     CBINConfig{Operation: operation, Format: format},
		codec:      codec,
		logger:     logger,
		mDecoded:   metrics.NewCounter("cbin_decoded_messages"),
		mEncoded:   metrics.NewCounter("cbin_encoded_messages"),
		mRecovered: metrics.NewCounter("cbin_recovered_messages"),
		mErrors:    metrics.NewCounter("cbin_processing_errors"),
	}, nil
}

// Process decodes or encodes a message.
func (p *CBINProcessor) Process(ctx context.Context, msg *service.Message) (service.MessageBatch, error) {
	if p.config.Operation == opDecode {
		return p.decode(ctx, msg)
	}
	return p.encode(ctx, msg)
}

// decode turns CBIN bytes into text or a structured document.
func (p *CBINProcessor) decode(ctx context.Context, msg *service.Message) (service.MessageBatch, error) {
	data, err := msg.AsBytes()
	if err != nil {
		return p.fail(msg, "failed to get binary data from message", err)
	}
	if len(data) == 0 {
		return p.fail(msg, "empty binary data provided", nil)
	}

	doc, err := p.codec.Decode(ctx, data)
	if err != nil {
		return p.fail(msg, fmt.Sprintf("failed to decode %d bytes of CBIN data", len(data)), err)
	}
	if !doc.Success {
		p.logger.Warnf("CBIN data decoded with %d record errors", len(doc.Diagnostics))
		p.mRecovered.Incr(1)
	}

	var newMsg *service.Message
	if p.config.Format == formatText {
		newMsg = service.NewMessage([]byte(cbin.ToText(doc)))
	} else {
		newMsg = service.NewMessage(nil)
		newMsg.SetStructured(doc.ToMap())
	}
	copyMetadata(msg, newMsg)

	summary := doc.Summary()
	newMsg.MetaSet("cbin_success", strconv.FormatBool(doc.Success))
	newMsg.MetaSet("cbin_sections", strconv.Itoa(summary.Sections))
	newMsg.MetaSet("cbin_token_count", strconv.Itoa(summary.Tokens))

	p.logger.Debugf("Decoded %d bytes of CBIN data into %d sections", len(data), summary.Sections)
	p.mDecoded.Incr(1)
	return service.MessageBatch{newMsg}, nil
}

// encode turns text or a structured document into CBIN bytes.
func (p *CBINProcessor) encode(ctx context.Context, msg *service.Message) (service.MessageBatch, error) {
	var doc *cbin.Document
	if p.config.Format == formatText {
		text, err := msg.AsBytes()
		if err != nil {
			return p.fail(msg, "failed to get text from message", err)
		}
		if doc, err = p.codec.Import(ctx, bytes.NewReader(text)); err != nil {
			return p.fail(msg, "failed to import text", err)
		}
	} else {
		structured, err := msg.AsStructured()
		if err != nil {
			return p.fail(msg, "failed to get structured data from message", err)
		}
		m, ok := structured.(map[string]any)
		if !ok {
			return p.fail(msg, "failed to import structured data", fmt.Errorf("expected object, got %T", structured))
		}
		if doc, err = p.codec.FromMap(ctx, m); err != nil {
			return p.fail(msg, "failed to import structured data", err)
		}
	}

	data, err := p.codec.Encode(ctx, doc)
	if err != nil {
		return p.fail(msg, "failed to encode document", err)
	}

	newMsg := service.NewMessage(data)
	copyMetadata(msg, newMsg)
	newMsg.MetaSet("cbin_token_count", strconv.Itoa(doc.Tokens.Len()))

	p.logger.Debugf("Encoded document into %d bytes of CBIN data", len(data))
	p.mEncoded.Incr(1)
	return service.MessageBatch{newMsg}, nil
}

// fail flags msg with an error and passes it on.
func (p *CBINProcessor) fail(msg *service.Message, what string, err error) (service.MessageBatch, error) {
	if err == nil {
		err = errors.New(what)
	} else {
		err = fmt.Errorf("%s: %w", what, err)
	}
	p.logger.Errorf("%v", err)
	p.mErrors.Incr(1)
	msg.SetError(err)
	return service.MessageBatch{msg}, nil
}

func copyMetadata(from, to *service.Message) {
	_ = from.MetaWalk(func(key, value string) error {
		to.MetaSet(key, value)
		return nil
	})
}

// Close the processor resources
func (p *CBINProcessor) Close(ctx context.Context) error {
	return nil
}

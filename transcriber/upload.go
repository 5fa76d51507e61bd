package transcriber

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"hark/encoder"
	"hark/log"
)

// sendFunc posts one encoded recording and parses the provider's answer.
type sendFunc func(ctx context.Context, f File, language string) (*Result, error)

// upload encodes req in the configured format, sends it and logs the
// request timing the way every hosted provider reports it.
func upload(ctx context.Context, provider, format string, req Request, send sendFunc) (*Result, error) {
	if len(req.Samples) == 0 {
		return nil, ErrEmptyAudio
	}
	rate := req.SampleRate
	if rate == 0 {
		rate = encoder.SampleRate
	}
	if format == "" {
		format = encoder.FormatFLAC
	}

	start := time.Now()
	data, err := encoder.Encode(format, rate, req.Samples)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", format, err)
	}
	encodeTime := time.Since(start)

	result, err := send(ctx, File{
		Data:        data,
		Name:        "audio." + format,
		ContentType: encoder.ContentType(format),
	}, req.Language)
	if err != nil {
		return nil, err
	}

	rawSize := len(req.Samples) * 2
	m := log.Metrics{
		AudioLengthS:     float64(len(req.Samples)) / float64(rate),
		RawSizeKB:        float64(rawSize) / 1024,
		CompressedSizeKB: float64(len(data)) / 1024,
		CompressionPct:   (1 - float64(len(data))/float64(rawSize)) * 100,
		EncodeTimeMs:     float64(encodeTime.Milliseconds()),
	}
	var reused bool
	var proto string
	if nm := result.Metrics; nm != nil {
		m.DNSTimeMs = float64(nm.DNS.Milliseconds())
		m.TLSTimeMs = float64(nm.TLS.Milliseconds())
		m.TTFBMs = float64(nm.TTFB.Milliseconds())
		m.TotalTimeMs = float64(nm.Sum().Milliseconds())
		reused, proto = nm.ConnReused, nm.TLSProtocol
	}
	log.TranscriptionMetrics(m, format, provider, reused, proto)
	return result, nil
}

// multipartRequest builds an OpenAI-style audio/transcriptions form.
func multipartRequest(ctx context.Context, url string, f File, fields map[string]string) (*http.Request, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	name := f.Name
	if name == "" {
		name = "audio"
	}
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(f.Data); err != nil {
		return nil, err
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := writer.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req, nil
}

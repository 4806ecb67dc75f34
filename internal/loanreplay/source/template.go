// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package source

import (
	"compress/gzip"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

//go:embed samples/*.json
var sampleFS embed.FS

const defaultTemplateName = "Loan_Event_Sample.json"

// TemplateOptions selects exactly one of Inline, S3URI, or Name (bundled
// sample), in that precedence order. With Inline, a non-empty Name is
// still used as the template's display name.
type TemplateOptions struct {
	Inline map[string]any
	S3URI  string
	Name   string
}

// LoadTemplate resolves a template tree and a display name for it.
func LoadTemplate(ctx context.Context, client S3API, opts TemplateOptions) (map[string]any, string, error) {
	if opts.Inline != nil {
		name := opts.Name
		if name == "" {
			name = "inline_template.json"
		}
		return opts.Inline, name, nil
	}

	if opts.S3URI != "" {
		if client == nil {
			return nil, "", fmt.Errorf("source: template_s3_uri given without an s3 client")
		}
		_, key, err := ParseS3URI(opts.S3URI)
		if err != nil {
			return nil, "", err
		}
		data, err := fetchS3Object(ctx, client, opts.S3URI)
		if err != nil {
			return nil, "", err
		}
		var tmpl map[string]any
		if err := json.Unmarshal(data, &tmpl); err != nil {
			return nil, "", fmt.Errorf("source: decode template %s: %w", opts.S3URI, err)
		}
		return tmpl, path.Base(key), nil
	}

	name := opts.Name
	if name == "" {
		name = defaultTemplateName
	}
	f, err := sampleFS.Open(path.Join("samples", name))
	if err != nil {
		return nil, "", fmt.Errorf("source: template %q not found in bundled samples: %w", name, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", fmt.Errorf("source: read bundled template %q: %w", name, err)
	}
	var tmpl map[string]any
	if err := json.Unmarshal(data, &tmpl); err != nil {
		return nil, "", fmt.Errorf("source: decode bundled template %q: %w", name, err)
	}
	return tmpl, name, nil
}

func fetchS3Object(ctx context.Context, client S3API, uri string) ([]byte, error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("source: s3 GetObject %s: %w", uri, err)
	}
	defer out.Body.Close()

	var body io.Reader = out.Body
	if isGzipEncoded(out, key) {
		gz, err := gzip.NewReader(out.Body)
		if err != nil {
			return nil, fmt.Errorf("source: gzip decode %s: %w", uri, err)
		}
		defer gz.Close()
		body = gz
	}
	return io.ReadAll(body)
}

// RenderWithLoan walks the template tree, replacing in every string leaf, in
// order, the legacy-misspelled placeholder, the correct placeholder, the
// seq token, and the loan token — each with a global substring replacement.
// Non-string leaves are returned unchanged.
func RenderWithLoan(tmpl any, loan string, seq int64) any {
	switch v := tmpl.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = RenderWithLoan(val, loan, seq)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = RenderWithLoan(val, loan, seq)
		}
		return out
	case string:
		s := strings.ReplaceAll(v, "#loanNumberPlacehoder", loan)
		s = strings.ReplaceAll(s, "#loanNumberPlaceholder", loan)
		s = strings.ReplaceAll(s, "{seq}", strconv.FormatInt(seq, 10))
		s = strings.ReplaceAll(s, "{loanNumber}", loan)
		return s
	default:
		return v
	}
}

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

// Package main provides the entry point for the loan event replay and
// synthesis publisher.
//
// In production this binary runs as an AWS Lambda function: lambda.Start
// wires handler.Handle up to the Lambda runtime, which decides per
// invocation whether the event is a direct invoke or wrapped by an ALB
// target group.
//
// For local testing without a Lambda runtime present, -local reads one
// invocation event from a JSON file on disk, runs it through the same
// handler, and prints the result to stdout.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"vsa/internal/loanreplay/handler"
	"vsa/internal/loanreplay/telemetry"
)

func main() {
	localEventPath := flag.String("local", "", "path to a JSON invocation event; when set, runs one invocation locally instead of starting the Lambda runtime")
	metricsAddr := flag.String("metrics_addr", "", "if non-empty, expose Prometheus /metrics on this address (e.g., :9090), for local runs only")
	metricsEnabled := flag.Bool("metrics", false, "enable in-process publish telemetry (opt-in)")
	flag.Parse()

	telemetry.Enable(telemetry.Config{Enabled: *metricsEnabled, MetricsAddr: *metricsAddr})

	if *localEventPath != "" {
		runLocal(*localEventPath)
		return
	}

	lambda.Start(handler.Handle)
}

func runLocal(path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("reading event file %s: %v", path, err)
	}

	var event json.RawMessage = raw
	out, err := handler.Handle(context.Background(), event)
	if err != nil {
		log.Fatalf("invocation failed: %v", err)
	}

	var pretty map[string]any
	if err := json.Unmarshal(out, &pretty); err != nil {
		fmt.Println(string(out))
		return
	}
	b, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		fmt.Println(string(out))
		return
	}
	fmt.Println(string(b))
}

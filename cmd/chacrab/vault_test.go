package main

import "testing"

func TestParseFieldFlags(t *testing.T) {
	fields, err := parseFieldFlags([]string{"env=prod", "region=us-east-1"})
	if err != nil {
		t.Fatalf("parseFieldFlags() error = %v", err)
	}
	if fields["env"] != "prod" || fields["region"] != "us-east-1" {
		t.Fatalf("parseFieldFlags() = %+v", fields)
	}
}

func TestParseFieldFlagsEmpty(t *testing.T) {
	fields, err := parseFieldFlags(nil)
	if err != nil {
		t.Fatalf("parseFieldFlags() error = %v", err)
	}
	if fields != nil {
		t.Fatalf("parseFieldFlags(nil) = %+v, want nil", fields)
	}
}

func TestParseFieldFlagsRejectsMissingEquals(t *testing.T) {
	if _, err := parseFieldFlags([]string{"not-a-pair"}); err == nil {
		t.Fatal("parseFieldFlags() error = nil, want error for malformed field")
	}
}

func TestMergeFieldsOverlaysWithoutDisturbingUntouched(t *testing.T) {
	existing := map[string]string{"env": "prod", "region": "us-east-1"}

	merged, err := mergeFields(existing, []string{"env=staging"})
	if err != nil {
		t.Fatalf("mergeFields() error = %v", err)
	}
	if merged["env"] != "staging" {
		t.Fatalf("mergeFields() env = %q, want staging", merged["env"])
	}
	if merged["region"] != "us-east-1" {
		t.Fatalf("mergeFields() region = %q, want untouched us-east-1", merged["region"])
	}
	if existing["env"] != "prod" {
		t.Fatal("mergeFields() mutated the existing map in place")
	}
}

func TestMergeFieldsNoOverridesReturnsExisting(t *testing.T) {
	existing := map[string]string{"env": "prod"}
	merged, err := mergeFields(existing, nil)
	if err != nil {
		t.Fatalf("mergeFields() error = %v", err)
	}
	if merged["env"] != "prod" {
		t.Fatalf("mergeFields() = %+v", merged)
	}
}

package parser

import (
	"errors"
	"reflect"
	"testing"

	"github.com/BTreeMap/ChartFlow/internal/models"
)

func TestParse_EmptyInputReturnsNil(t *testing.T) {
	for _, input := range []string{"", "   ", "\t\n"} {
		cmds, err := Parse(input)
		if err != nil {
			t.Errorf("Parse(%q) unexpected error: %v", input, err)
		}
		if cmds != nil {
			t.Errorf("Parse(%q) = %v, want nil", input, cmds)
		}
	}
}

func TestParse_Idempotent(t *testing.T) {
	input := "find patients named Smith and show their meds"
	first, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	second, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse failed on second call: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Parse is not idempotent: first %+v, second %+v", first, second)
	}
}

func TestParse_CompoundChainInheritsPatientContext(t *testing.T) {
	cmds, err := Parse("find patients named Smith and show their meds")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(cmds) != 2 {
		t.Fatalf("expected 2 commands, got %d: %+v", len(cmds), cmds)
	}

	if cmds[0].Action != models.ActionSearch || cmds[0].Resource != models.ResourcePatient {
		t.Errorf("first command = %s/%s, want search/patient", cmds[0].Action, cmds[0].Resource)
	}
	if cmds[0].Params.PatientName != "Smith" {
		t.Errorf("first command patient name = %q, want Smith", cmds[0].Params.PatientName)
	}

	if cmds[1].Action != models.ActionShow || cmds[1].Resource != models.ResourceMedication {
		t.Errorf("second command = %s/%s, want show/medication", cmds[1].Action, cmds[1].Resource)
	}
	if !cmds[1].Params.UseActivePatient {
		t.Error("second command should use the active patient")
	}
}

func TestParse_LaterSegmentInheritsFromEarlierPatient(t *testing.T) {
	// The second segment has no patient reference at all; it inherits the
	// context established by the first.
	cmds, err := Parse("show pt 12 labs then plot creatinine")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(cmds) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(cmds))
	}
	if cmds[0].Params.PatientID != "12" {
		t.Errorf("first command patient ID = %q, want 12", cmds[0].Params.PatientID)
	}
	if !cmds[1].Params.UseActivePatient {
		t.Error("second command should inherit use_active_patient")
	}
	if cmds[1].Action != models.ActionPlot {
		t.Errorf("second command action = %s, want plot", cmds[1].Action)
	}
	if cmds[1].Params.LabCode != "2160-0" {
		t.Errorf("second command lab code = %q, want 2160-0", cmds[1].Params.LabCode)
	}
}

func TestCompile_SelectIndexBelowOneRejected(t *testing.T) {
	for _, input := range []string{"select 0", "choose 0", "select -1"} {
		_, err := Compile(input)
		if !errors.Is(err, models.ErrInvalidIndex) {
			t.Errorf("Compile(%q) error = %v, want ErrInvalidIndex", input, err)
		}
	}
}

func TestCompile_SelectValidIndex(t *testing.T) {
	cmd, err := Compile("select 2")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if cmd.Action != models.ActionSelect {
		t.Errorf("action = %s, want select", cmd.Action)
	}
	if cmd.Params.Index != 2 {
		t.Errorf("index = %d, want 2", cmd.Params.Index)
	}
}

func TestClassify_DefaultsToShowUnknown(t *testing.T) {
	action, resource := Classify("something entirely unrelated")
	if action != models.ActionShow {
		t.Errorf("action = %s, want show", action)
	}
	if resource != models.ResourceUnknown {
		t.Errorf("resource = %s, want unknown", resource)
	}
}

func TestClassify_SMSBeforePatient(t *testing.T) {
	// "message" must win over the generic patient rule by declaration order.
	action, resource := Classify("message patient 5 about flu shots")
	if action != models.ActionMessage {
		t.Errorf("action = %s, want message", action)
	}
	if resource != models.ResourceSMS {
		t.Errorf("resource = %s, want sms", resource)
	}
}

func TestExtractEntities_LabAndTimeRange(t *testing.T) {
	params := ExtractEntities("show creatinine labs for pt 12 over the past 6 months")
	if params.LabCode != "2160-0" {
		t.Errorf("lab code = %q, want 2160-0", params.LabCode)
	}
	if params.PatientID != "12" {
		t.Errorf("patient ID = %q, want 12", params.PatientID)
	}
	if params.TimeRange != "6m" {
		t.Errorf("time range = %q, want 6m", params.TimeRange)
	}
}

func TestExtractEntities_LongestLabPhraseWins(t *testing.T) {
	params := ExtractEntities("plot hemoglobin a1c for pt 9")
	if params.LabCode != "4548-4" {
		t.Errorf("lab code = %q, want 4548-4 (hemoglobin a1c, not hemoglobin)", params.LabCode)
	}
}

func TestExtractEntities_MessageContentPriority(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"message pt 5 about the flu shot", "the flu shot"},
		{"text pt 5 saying see you tomorrow", "see you tomorrow"},
		{`text pt 5 "come in tomorrow"`, "come in tomorrow"},
	}
	for _, tc := range cases {
		params := ExtractEntities(tc.input)
		if params.MessageContent != tc.want {
			t.Errorf("ExtractEntities(%q).MessageContent = %q, want %q", tc.input, params.MessageContent, tc.want)
		}
	}
}

func TestExtractEntities_PronounSetsActivePatient(t *testing.T) {
	for _, input := range []string{"show their meds", "pull up his labs", "show her schedule"} {
		params := ExtractEntities(input)
		if !params.UseActivePatient {
			t.Errorf("ExtractEntities(%q) should set UseActivePatient", input)
		}
	}
}

func TestIsCompound_AndWithoutActionVerbIsNotChain(t *testing.T) {
	if IsCompound("search and rescue") {
		t.Error("'search and rescue' should not be a chain")
	}
	if !IsCompound("find Smith and show meds") {
		t.Error("'find Smith and show meds' should be a chain")
	}
	if !IsCompound("show meds then show labs") {
		t.Error("literal 'then' should make a chain")
	}
}

func TestSplit_NormalizesConnectors(t *testing.T) {
	segments := Split("find Smith and then show meds then plot creatinine")
	want := []string{"find Smith", "show meds", "plot creatinine"}
	if !reflect.DeepEqual(segments, want) {
		t.Errorf("Split = %v, want %v", segments, want)
	}
}

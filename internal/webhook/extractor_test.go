package webhook

import "testing"

func TestExtractLead(t *testing.T) {
	tests := []struct {
		name   string
		fields []FieldData
		want   ExtractedLead
	}{
		{
			name: "standard leadgen fields",
			fields: []FieldData{
				{Name: "full_name", Values: []string{"Jane Doe"}},
				{Name: "email", Values: []string{"Jane@Example.com"}},
				{Name: "phone_number", Values: []string{"(212) 555-0123"}},
			},
			want: ExtractedLead{FullName: "Jane Doe", Email: "jane@example.com", Phone: "+12125550123"},
		},
		{
			name: "split name fields",
			fields: []FieldData{
				{Name: "First Name", Values: []string{"Jane"}},
				{Name: "Last Name", Values: []string{"Doe"}},
			},
			want: ExtractedLead{FullName: "Jane Doe"},
		},
		{
			name: "fuzzy labels with separators",
			fields: []FieldData{
				{Name: "e-mail", Values: []string{"lead@example.com"}},
				{Name: "Mobile Number", Values: []string{"+1 212 555 0123"}},
			},
			want: ExtractedLead{Email: "lead@example.com", Phone: "+12125550123"},
		},
		{
			name: "invalid email dropped",
			fields: []FieldData{
				{Name: "email", Values: []string{"not-an-email"}},
			},
			want: ExtractedLead{},
		},
		{
			name: "invalid phone dropped",
			fields: []FieldData{
				{Name: "phone", Values: []string{"12345"}},
			},
			want: ExtractedLead{},
		},
		{
			name: "empty values skipped",
			fields: []FieldData{
				{Name: "full_name", Values: []string{"  "}},
				{Name: "email", Values: nil},
			},
			want: ExtractedLead{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractLead(tt.fields)
			if got != tt.want {
				t.Errorf("ExtractLead = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestIsIncomplete(t *testing.T) {
	if !(ExtractedLead{FullName: "Jane Doe"}).IsIncomplete() {
		t.Error("name without contact method should be incomplete")
	}
	if (ExtractedLead{Phone: "+15551234567"}).IsIncomplete() {
		t.Error("phone alone should be complete")
	}
	if (ExtractedLead{Email: "a@b.co"}).IsIncomplete() {
		t.Error("email alone should be complete")
	}
}

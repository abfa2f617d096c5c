package template

import (
	"testing"

	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/models"
)

func TestEngine_Validate(t *testing.T) {
	engine := NewEngine()

	tests := []struct {
		name    string
		tmpl    *models.Template
		wantErr bool
	}{
		{
			name: "valid template",
			tmpl: &models.Template{
				Subject: "Hello {{.FirstName}}",
				Text:    "Welcome {{.FullName}}!",
				HTML:    "<p>Welcome {{.FullName}}!</p>",
			},
			wantErr: false,
		},
		{
			name: "invalid subject syntax",
			tmpl: &models.Template{
				Subject: "Hello {{.FirstName",
				Text:    "Welcome",
			},
			wantErr: true,
		},
		{
			name: "invalid text syntax",
			tmpl: &models.Template{
				Subject: "Hello",
				Text:    "Welcome {{.FirstName",
			},
			wantErr: true,
		},
		{
			name: "invalid html syntax",
			tmpl: &models.Template{
				Subject: "Hello",
				HTML:    "<p>Welcome {{.FirstName</p>",
			},
			wantErr: true,
		},
		{
			name:    "empty template",
			tmpl:    &models.Template{},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := engine.Validate(tt.tmpl)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEngine_Render(t *testing.T) {
	engine := NewEngine()

	tmpl := &models.Template{
		Subject: "Quick question, {{.FirstName}}",
		Text:    "Hi {{.FirstName}}, saw {{.CompanyName}} is growing.",
		HTML:    "<p>Hi {{.FirstName}}, saw {{.CompanyName}} is growing.</p>",
	}
	data := map[string]interface{}{
		"FirstName":   "Ada",
		"CompanyName": "Initech",
	}

	got, err := engine.Render(tmpl, data)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got.Subject != "Quick question, Ada" {
		t.Errorf("subject = %q", got.Subject)
	}
	if got.Text != "Hi Ada, saw Initech is growing." {
		t.Errorf("text = %q", got.Text)
	}
	if got.HTML != "<p>Hi Ada, saw Initech is growing.</p>" {
		t.Errorf("html = %q", got.HTML)
	}
}

func TestEngine_RenderEscapesHTML(t *testing.T) {
	engine := NewEngine()

	tmpl := &models.Template{
		Subject: "hi",
		HTML:    "<p>{{.CompanyName}}</p>",
	}
	got, err := engine.Render(tmpl, map[string]interface{}{
		"CompanyName": "<script>alert(1)</script>",
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got.HTML == "<p><script>alert(1)</script></p>" {
		t.Error("html output was not escaped")
	}
}

func TestEngine_RenderMissingVariable(t *testing.T) {
	engine := NewEngine()

	tmpl := &models.Template{Subject: "Hello {{.FirstName}}"}
	got, err := engine.Render(tmpl, map[string]interface{}{})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	// text/template prints <no value> for absent map keys
	if got.Subject == "Hello " {
		t.Errorf("subject = %q", got.Subject)
	}
}

func TestLeadData(t *testing.T) {
	lead := &models.Lead{
		Email:       "ada@initech.example",
		FullName:    "Ada Lovelace",
		CompanyName: "Initech",
	}
	data := LeadData(lead)

	if data["FirstName"] != "Ada" {
		t.Errorf("FirstName = %v", data["FirstName"])
	}
	if data["FullName"] != "Ada Lovelace" {
		t.Errorf("FullName = %v", data["FullName"])
	}
	if data["Email"] != "ada@initech.example" {
		t.Errorf("Email = %v", data["Email"])
	}

	single := LeadData(&models.Lead{FullName: "Cher"})
	if single["FirstName"] != "Cher" {
		t.Errorf("single-name FirstName = %v", single["FirstName"])
	}
}

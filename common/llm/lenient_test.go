package llm

import "testing"

type lenientTarget struct {
	Answer string `json:"answer"`
	Count  int    `json:"count"`
}

func TestParseLenient(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    lenientTarget
		wantErr bool
	}{
		{
			name:  "clean JSON",
			input: `{"answer": "ok", "count": 2}`,
			want:  lenientTarget{Answer: "ok", Count: 2},
		},
		{
			name:  "code fenced",
			input: "```json\n{\"answer\": \"ok\", \"count\": 2}\n```",
			want:  lenientTarget{Answer: "ok", Count: 2},
		},
		{
			name:  "prose around the object",
			input: "Here is the result you asked for:\n{\"answer\": \"ok\", \"count\": 1}\nHope that helps!",
			want:  lenientTarget{Answer: "ok", Count: 1},
		},
		{
			name:  "trailing comma",
			input: `{"answer": "ok", "count": 3,}`,
			want:  lenientTarget{Answer: "ok", Count: 3},
		},
		{
			name:  "smart quotes",
			input: `{“answer”: “ok”, “count”: 4}`,
			want:  lenientTarget{Answer: "ok", Count: 4},
		},
		{
			name:    "no JSON at all",
			input:   "I could not produce the requested object.",
			wantErr: true,
		},
		{
			name:    "unterminated object",
			input:   `{"answer": "ok", "cou`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got lenientTarget
			err := ParseLenient(tt.input, &got)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

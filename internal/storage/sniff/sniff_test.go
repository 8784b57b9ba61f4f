package sniff

import (
	"bytes"
	"testing"
)

// validPDF собирает минимальный буфер с корректной PDF-сигнатурой.
func validPDF(filler int) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")
	buf.Write(bytes.Repeat([]byte("x"), filler))
	buf.WriteString("\n%%EOF\n")
	return buf.Bytes()
}

// validPNG — минимальный буфер с PNG-сигнатурой.
func validPNG() []byte {
	return append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, []byte("IHDR...")...)
}

// validJPEG — буфер с префиксом FF D8 FF и трейлером FF D9.
func validJPEG() []byte {
	data := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	data = append(data, bytes.Repeat([]byte{0x00}, 16)...)
	return append(data, 0xFF, 0xD9)
}

func TestIsPDF(t *testing.T) {
	if !IsPDF(validPDF(100)) {
		t.Error("валидный PDF должен приниматься")
	}

	// %%EOF глубже последних 2 КБ — подделка
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n%%EOF\n")
	buf.Write(bytes.Repeat([]byte("A"), 4096))
	if IsPDF(buf.Bytes()) {
		t.Errorf("PDF без %%%%EOF в последних 2 КБ должен отклоняться")
	}

	if IsPDF([]byte("not a pdf at all %%EOF")) {
		t.Error("буфер без префикса %PDF- должен отклоняться")
	}
	if IsPDF(nil) {
		t.Error("пустой буфер должен отклоняться")
	}
}

func TestIsPDF_EOFNearEnd(t *testing.T) {
	// Маркер внутри последних 2 КБ, но не в самом конце — допустимо
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")
	buf.Write(bytes.Repeat([]byte("B"), 8192))
	buf.WriteString("%%EOF")
	buf.Write(bytes.Repeat([]byte(" "), 500))
	if !IsPDF(buf.Bytes()) {
		t.Errorf("PDF с %%%%EOF в пределах последних 2 КБ должен приниматься")
	}
}

func TestIsSupportedImage(t *testing.T) {
	tests := []struct {
		name string
		mime string
		data []byte
		want bool
	}{
		{"png с верным MIME", "image/png", validPNG(), true},
		{"png с generic MIME", "image/x-unknown", validPNG(), true},
		{"png заявлен как jpeg", "image/jpeg", validPNG(), false},
		{"jpeg с верным MIME", "image/jpeg", validJPEG(), true},
		{"jpeg c альтернативным MIME", "image/jpg", validJPEG(), true},
		{"jpeg без трейлера", "image/jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}, false},
		{"gif87a", "image/gif", []byte("GIF87a......"), true},
		{"gif89a", "image/gif", []byte("GIF89a......"), true},
		{"webp", "image/webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), true},
		{"webp без ключевого слова", "image/webp", []byte("RIFF\x00\x00\x00\x00AVI LIST"), false},
		{"переименованный текст", "image/png", []byte("hello world, not an image"), false},
		{"не image MIME", "application/pdf", validPNG(), false},
		{"пустой буфер", "image/png", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSupportedImage(tt.mime, tt.data); got != tt.want {
				t.Errorf("IsSupportedImage(%q) = %v, ожидалось %v", tt.mime, got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	if Classify("application/pdf", validPDF(10)) != Document {
		t.Error("валидный PDF должен классифицироваться как Document")
	}
	if Classify("application/pdf", validPNG()) != Rejected {
		t.Error("PNG, заявленный как PDF, должен отклоняться")
	}
	if Classify("image/png", validPNG()) != Image {
		t.Error("валидный PNG должен классифицироваться как Image")
	}
	if Classify("image/svg+xml", []byte("<svg/>")) != Rejected {
		t.Error("неподдерживаемый формат изображения должен отклоняться")
	}
	if Classify("text/plain", []byte("plain")) != Rejected {
		t.Error("посторонний MIME должен отклоняться")
	}
}

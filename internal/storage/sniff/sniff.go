// Пакет sniff — проверка подлинности содержимого загружаемых файлов.
// Сверяет сырые байты с заявленным MIME-типом по magic-сигнатурам форматов.
// Чистая инспекция без I/O и без побочных эффектов: для некорректного
// содержимого возвращается вердикт Rejected, а не ошибка.
package sniff

import (
	"bytes"
	"strings"
)

// Kind — вердикт проверки содержимого.
type Kind int

const (
	// Rejected — содержимое не соответствует заявленному типу.
	Rejected Kind = iota
	// Document — валидный PDF-документ.
	Document
	// Image — валидное изображение поддерживаемого формата.
	Image
)

// Сигнатуры поддерживаемых форматов.
var (
	pdfMagic  = []byte("%PDF-")
	pdfEOF    = []byte("%%EOF")
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	gifMagic1 = []byte("GIF87a")
	gifMagic2 = []byte("GIF89a")
	riffMagic = []byte("RIFF")
	webpMagic = []byte("WEBP")
)

// pdfTrailerWindow — размер хвоста, в котором ищется маркер %%EOF.
const pdfTrailerWindow = 2048

// Classify сверяет содержимое с заявленным MIME-типом.
// Возвращает Document для валидного PDF, Image для валидного
// изображения, Rejected во всех остальных случаях.
func Classify(declaredMime string, data []byte) Kind {
	if declaredMime == "application/pdf" {
		if IsPDF(data) {
			return Document
		}
		return Rejected
	}
	if IsSupportedImage(declaredMime, data) {
		return Image
	}
	return Rejected
}

// IsPDF проверяет PDF-сигнатуру: префикс %PDF- и маркер %%EOF
// в последних 2 КБ. Неглубокая, но действенная защита от файлов,
// переименованных в .pdf без конвертации.
func IsPDF(data []byte) bool {
	if !bytes.HasPrefix(data, pdfMagic) {
		return false
	}
	window := len(data)
	if window > pdfTrailerWindow {
		window = pdfTrailerWindow
	}
	return bytes.Contains(data[len(data)-window:], pdfEOF)
}

// IsSupportedImage проверяет изображение по заявленному MIME-типу.
// Для generic "image/*" пробует все известные сигнатуры и
// принимает при первом совпадении.
func IsSupportedImage(declaredMime string, data []byte) bool {
	switch declaredMime {
	case "image/png":
		return isPNG(data)
	case "image/jpeg", "image/jpg":
		return isJPEG(data)
	case "image/gif":
		return isGIF(data)
	case "image/webp":
		return isWEBP(data)
	}
	if strings.HasPrefix(declaredMime, "image/") {
		return isPNG(data) || isJPEG(data) || isGIF(data) || isWEBP(data)
	}
	return false
}

func isPNG(data []byte) bool {
	return bytes.HasPrefix(data, pngMagic)
}

// isJPEG проверяет префикс FF D8 FF и маркер конца изображения FF D9.
func isJPEG(data []byte) bool {
	if len(data) < 4 || !bytes.HasPrefix(data, jpegMagic) {
		return false
	}
	return data[len(data)-2] == 0xFF && data[len(data)-1] == 0xD9
}

func isGIF(data []byte) bool {
	return bytes.HasPrefix(data, gifMagic1) || bytes.HasPrefix(data, gifMagic2)
}

// isWEBP проверяет RIFF-контейнер с ключевым словом WEBP в байтах 8-11.
func isWEBP(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	return bytes.HasPrefix(data, riffMagic) && bytes.Equal(data[8:12], webpMagic)
}

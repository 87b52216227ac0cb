package analyzer

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"slices"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	MaxFileSizeMB = 10
	MaxFileBytes  = MaxFileSizeMB << 20

	mimePDF = "application/pdf"
)

// ImageTypes are the image content types sent to the model.
var ImageTypes = []string{"image/png", "image/jpeg", "image/webp", "image/gif"}

// InputError is a client mistake in the uploaded form. Message is user facing.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

// FromForm builds an Input from the multipart "text" field and "files" parts.
// PDFs contribute their text, images are kept as raw bytes.
func FromForm(text string, files []*multipart.FileHeader) (Input, error) {
	in := Input{Text: strings.TrimSpace(text)}
	for _, fh := range files {
		if fh == nil || fh.Size == 0 {
			continue
		}
		if fh.Size > MaxFileBytes {
			return Input{}, &InputError{Message: fmt.Sprintf("ファイルサイズは%dMB以下にしてください: %s", MaxFileSizeMB, fh.Filename)}
		}
		mimeType := fh.Header.Get("Content-Type")
		switch {
		case mimeType == mimePDF:
			data, err := readAll(fh)
			if err != nil {
				return Input{}, &InputError{Message: "PDFの読み取りに失敗しました: " + fh.Filename}
			}
			extracted, err := PDFText(data)
			if err != nil {
				return Input{}, &InputError{Message: "PDFの読み取りに失敗しました: " + fh.Filename}
			}
			if extracted = strings.TrimSpace(extracted); extracted != "" {
				if in.Text != "" {
					in.Text += "\n\n"
				}
				in.Text += "[PDF: " + fh.Filename + "]\n" + extracted
			}
		case slices.Contains(ImageTypes, mimeType):
			data, err := readAll(fh)
			if err != nil {
				return Input{}, err
			}
			in.Images = append(in.Images, Image{Data: data, MimeType: mimeType})
		default:
			return Input{}, &InputError{Message: "未対応のファイル形式です: " + fh.Filename + "（PDFまたは画像をアップロードしてください）"}
		}
	}
	return in, nil
}

// PDFText returns the plain text of a PDF document.
func PDFText(data []byte) (text string, err error) {
	// the pdf reader panics on some malformed xref tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func readAll(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, MaxFileBytes+1))
}

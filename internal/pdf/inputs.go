package pdf

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"
)

// 画像入力として受け付けるMIMEタイプ。
var imageMIMETypes = []string{"image/png", "image/jpeg"}

// Office文書として受け付けるMIMEタイプ。
var officeMIMETypes = []string{
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"application/msword",
	"application/vnd.ms-excel",
	"application/vnd.ms-powerpoint",
	"application/vnd.oasis.opendocument.text",
	"application/vnd.oasis.opendocument.spreadsheet",
	"application/vnd.oasis.opendocument.presentation",
}

// requirePDF は保存済みファイルが実際にPDFであることをシグネチャで確認します。
func requirePDF(sf storedFile) error {
	mt, err := mimetype.DetectFile(sf.path)
	if err != nil {
		return fmt.Errorf("ファイル形式の判定に失敗しました: %w", err)
	}
	if !mt.Is("application/pdf") {
		return newError(CodeUnsupportedFormat,
			fmt.Sprintf("PDFファイルではありません: %s (%s)", sf.originalName, mt.String()), nil)
	}
	return nil
}

// requireImage は保存済みファイルが対応画像形式であることを確認します。
func requireImage(sf storedFile) error {
	mt, err := mimetype.DetectFile(sf.path)
	if err != nil {
		return fmt.Errorf("ファイル形式の判定に失敗しました: %w", err)
	}
	for _, accepted := range imageMIMETypes {
		if mt.Is(accepted) {
			return nil
		}
	}
	return newError(CodeUnsupportedFormat,
		fmt.Sprintf("対応していない画像形式です: %s (%s)", sf.originalName, mt.String()), nil)
}

// requireOffice は保存済みファイルが対応Office文書であることを確認します。
func requireOffice(sf storedFile) error {
	mt, err := mimetype.DetectFile(sf.path)
	if err != nil {
		return fmt.Errorf("ファイル形式の判定に失敗しました: %w", err)
	}
	for _, accepted := range officeMIMETypes {
		if mt.Is(accepted) {
			return nil
		}
	}
	return newError(CodeUnsupportedFormat,
		fmt.Sprintf("対応していないOffice文書形式です: %s (%s)", sf.originalName, mt.String()), nil)
}

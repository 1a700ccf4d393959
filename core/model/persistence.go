package model

import (
	"encoding/gob"
	"io"
	"os"

	"github.com/ppabba101/CloudPred/pkg/errors"
)

// SaveModel はモデルを gob 形式でファイルに保存する
//
// 使用例:
//
//	err := model.SaveModel(trained, "cloudpred.gob")
func SaveModel(m interface{}, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", filename)
	}
	if err := SaveModelToWriter(m, file); err != nil {
		_ = file.Close()
		return err
	}
	// 書き込み遅延エラーは Close で初めて返ることがある
	if err := file.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", filename)
	}
	return nil
}

// LoadModel はファイルからモデルを読み込む。m はポインタであること
//
// 使用例:
//
//	var trained cloudpred.Model
//	err := model.LoadModel(&trained, "cloudpred.gob")
func LoadModel(m interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", filename)
	}
	defer file.Close()

	return LoadModelFromReader(m, file)
}

// SaveModelToWriter はモデルを io.Writer に gob 形式で書き出す
func SaveModelToWriter(m interface{}, w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(m); err != nil {
		return errors.Wrap(err, "failed to encode model")
	}
	return nil
}

// LoadModelFromReader は io.Reader からモデルを読み込む
func LoadModelFromReader(m interface{}, r io.Reader) error {
	if err := gob.NewDecoder(r).Decode(m); err != nil {
		return errors.Wrap(err, "failed to decode model")
	}
	return nil
}

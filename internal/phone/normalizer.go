// Package phone は国番号と電話番号の組を国際形式として検証・正規化する。
package phone

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/hitoshi/userapi/internal/model"
	"github.com/nyaruka/phonenumbers"
)

// ErrInvalidPhone は電話番号として解析できない、または番号計画上無効な場合のエラー。
var ErrInvalidPhone = errors.New("invalid phone number")

// unknownRegion は "+" 付きの国際形式を解析するときの既定リージョン。
const unknownRegion = "ZZ"

// Normalizer は電話番号の正規化を行う。状態を持たず並行利用できる。
type Normalizer struct{}

// NewNormalizer はNormalizerを生成する。
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize は国番号と国内番号を連結した "+<国番号><国内番号>" を解析し、
// 番号計画のルールで有効性を確認する。
// 戻り値の国番号・国内番号はパーサーが導出したもので、入力と異なる場合がある。
func (n *Normalizer) Normalize(countryCode int, nationalNumber int64) (model.PhoneNumber, error) {
	// 負数を連結すると "-" が区切り文字として読み飛ばされるため先に弾く
	if countryCode <= 0 || nationalNumber <= 0 {
		return model.PhoneNumber{}, fmt.Errorf("%w: non-positive component", ErrInvalidPhone)
	}

	raw := "+" + strconv.Itoa(countryCode) + strconv.FormatInt(nationalNumber, 10)

	num, err := phonenumbers.Parse(raw, unknownRegion)
	if err != nil {
		return model.PhoneNumber{}, fmt.Errorf("%w: %v", ErrInvalidPhone, err)
	}

	if !phonenumbers.IsValidNumber(num) {
		return model.PhoneNumber{}, fmt.Errorf("%w: %s", ErrInvalidPhone, raw)
	}

	return model.PhoneNumber{
		CountryCode:    int(num.GetCountryCode()),
		NationalNumber: int64(num.GetNationalNumber()),
	}, nil
}

// FormatE164 は正規化済み番号をE.164形式の文字列にする。
func FormatE164(p model.PhoneNumber) string {
	return "+" + strconv.Itoa(p.CountryCode) + strconv.FormatInt(p.NationalNumber, 10)
}

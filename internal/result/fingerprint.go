package result

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// fingerprintLength 余额指纹截取长度，16 个十六进制字符足够区分变化。
const fingerprintLength = 16

// Fingerprint 对"账号 key → 余额"生成稳定指纹。
// encoding/json 对 map 按 key 排序输出，同样的余额集合总是得到同样的指纹。
func Fingerprint(balances map[string]float64) string {
	if len(balances) == 0 {
		return ""
	}
	b, err := json.Marshal(balances)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:fingerprintLength]
}

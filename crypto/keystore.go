package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"strings"

	"github.com/howeyc/gopass"
	"golang.org/x/crypto/scrypt"

	"github.com/kgricour/archethic-node/utils"
)

/*
The node master seed lives on disk either as a plain hex file or as a
scrypt-sealed JSON envelope. Every chain key of the node is derived from
this seed with DeriveKeypair.
*/

const (
	PlainSeedType  = 1
	SealedSeedType = 2

	PlainSeedFile  = ".seed"
	SealedSeedFile = ".seed.sealed"

	seedLen    = 32
	version1   = 1
	kdfName    = "scrypt"
	dkLen      = 32
	scryptN    = 262144
	scryptP    = 1
	scryptR    = 8
	saltLen    = 32
	cryptoName = "aes-256-gcm"
)

type sealedSeedJSON struct {
	Version    int         `json:"version"`
	KdfName    string      `json:"kdfName"`
	KDF        interface{} `json:"kdf"`
	CryptoName string      `json:"cryptoName"`
	Crypto     interface{} `json:"crypto"`
}

type scryptKDF struct {
	DkLen int    `json:"dkLen"`
	N     int    `json:"n"`
	P     int    `json:"p"`
	R     int    `json:"r"`
	Salt  string `json:"salt"`
}

type aes256GcmCrypto struct {
	CipherText string `json:"cipherText"`
	Nonce      string `json:"nonce"`
}

// NewPlainSeed generates a master seed and saves it as plain hex
func NewPlainSeed(path string) ([]byte, error) {
	keyFile := path + "/" + PlainSeedFile
	if err := checkBeforeNewSeed(path, keyFile); err != nil {
		return nil, err
	}

	seed := make([]byte, seedLen)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}

	if err := saveOnDisk([]byte(utils.ToHex(seed)), keyFile); err != nil {
		return nil, err
	}
	return seed, nil
}

// NewSealedSeed generates a master seed, seals it with a passphrase
// and saves it
func NewSealedSeed(path string) ([]byte, error) {
	keyFile := path + "/" + SealedSeedFile
	if err := checkBeforeNewSeed(path, keyFile); err != nil {
		return nil, err
	}

	seed := make([]byte, seedLen)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}

	if err := sealSeedAndSaveIt(seed, keyFile); err != nil {
		return nil, err
	}
	return seed, nil
}

// RestorePlainSeed restores the master seed from a plain hex file
func RestorePlainSeed(path string) ([]byte, error) {
	keyFile := path + "/" + PlainSeedFile
	hexSeed, err := readSeedFile(keyFile)
	if err != nil {
		return nil, err
	}

	seed, err := utils.FromHex(string(hexSeed))
	if err != nil {
		return nil, err
	}
	if len(seed) != seedLen {
		return nil, fmt.Errorf("invalid seed length %d", len(seed))
	}
	return seed, nil
}

// RestoreSealedSeed restores the master seed from a sealed envelope,
// asking for the passphrase on the terminal
func RestoreSealedSeed(path string) ([]byte, error) {
	keyFile := path + "/" + SealedSeedFile
	jsonBytes, err := readSeedFile(keyFile)
	if err != nil {
		return nil, err
	}

	ks, kdf, aesCrypto, err := jsonUnMarshal(jsonBytes)
	if err != nil {
		return nil, err
	}

	fmt.Printf("Input your passphrase to decrypt your seed:")
	pass, err := gopass.GetPasswdMasked()
	if err != nil {
		return nil, fmt.Errorf("Get passphrase failed:%v", err)
	}

	return openSeed(pass, ks, kdf, aesCrypto)
}

// SealPlainSeed seals an existing plain seed into a sealed envelope
func SealPlainSeed(plainPath string, outputPath string) error {
	keyFile := outputPath + "/" + SealedSeedFile
	if err := checkBeforeNewSeed(outputPath, keyFile); err != nil {
		return err
	}

	seed, err := RestorePlainSeed(plainPath)
	if err != nil {
		return err
	}

	return sealSeedAndSaveIt(seed, keyFile)
}

// OpenSealedSeed exports a sealed seed back to a plain hex file
func OpenSealedSeed(sealedPath string, outputPath string) error {
	keyFile := outputPath + "/" + PlainSeedFile
	if err := checkBeforeNewSeed(outputPath, keyFile); err != nil {
		return err
	}

	seed, err := RestoreSealedSeed(sealedPath)
	if err != nil {
		return err
	}

	return saveOnDisk([]byte(utils.ToHex(seed)), keyFile)
}

func checkBeforeNewSeed(path string, file string) error {
	if err := utils.AccessCheck(path); err != nil {
		return err
	}

	if err := utils.AccessCheck(file); err == nil {
		return fmt.Errorf("File %s already exists."+
			"You should remove it before creating a new one in the same directory",
			file)
	}

	return nil
}

func readSeedFile(file string) ([]byte, error) {
	if err := utils.AccessCheck(file); err != nil {
		return nil, err
	}

	content, err := ioutil.ReadFile(file)
	if err != nil {
		return nil, err
	}

	return []byte(strings.TrimSpace(string(content))), nil
}

func saveOnDisk(content []byte, file string) error {
	return ioutil.WriteFile(file, content, 0600)
}

func sealSeedAndSaveIt(seed []byte, outputFile string) error {
	pass, err := getPassphrase()
	if err != nil {
		return err
	}

	sealedContent, err := seal(pass, seed)
	if err != nil {
		return err
	}

	return saveOnDisk(sealedContent, outputFile)
}

func getPassphrase() ([]byte, error) {
	fmt.Printf("Input your passphrase(Please Remember it):")
	pass1, err := gopass.GetPasswdMasked()
	if err != nil {
		return nil, fmt.Errorf("Get passphrase failed:%v", err)
	} else if len(pass1) < 8 {
		return nil, fmt.Errorf("Password should be at least 8 characters")
	}
	fmt.Printf("Repeat it:")
	pass2, err := gopass.GetPasswdMasked()
	if err != nil {
		return nil, fmt.Errorf("Get passphrase failed:%v", err)
	}
	if !bytes.Equal(pass1, pass2) {
		return nil, errors.New("Inconsistent input")
	}

	return pass1, nil
}

func seal(passphrase []byte, seed []byte) ([]byte, error) {
	salt := make([]byte, saltLen)
	var err error
	var dk []byte
	if _, err = rand.Read(salt); err != nil {
		return nil, err
	}

	if dk, err = scrypt.Key(passphrase, salt, scryptN, scryptR, scryptP, dkLen); err != nil {
		return nil, err
	}

	nonce, cipherText, err := aesEncrypt(seed, dk)
	if err != nil {
		return nil, err
	}

	return jsonMarshal(utils.ToHex(nonce), utils.ToHex(cipherText), utils.ToHex(salt))
}

func aesEncrypt(plaintext []byte, key []byte) (nonceRet, cipherTextRet []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}

	nonce := make([]byte, 12)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	var aesgcm cipher.AEAD
	if aesgcm, err = cipher.NewGCM(block); err != nil {
		return nil, nil, err
	}

	cipherText := aesgcm.Seal(nil, nonce, plaintext, nil)
	return nonce, cipherText, nil
}

func jsonMarshal(nonce, cipherText, salt string) ([]byte, error) {
	kdf := &scryptKDF{
		DkLen: dkLen,
		N:     scryptN,
		P:     scryptP,
		R:     scryptR,
		Salt:  salt,
	}

	aesCrypto := &aes256GcmCrypto{
		CipherText: cipherText,
		Nonce:      nonce,
	}

	ks := sealedSeedJSON{
		Version:    version1,
		KdfName:    kdfName,
		KDF:        kdf,
		CryptoName: cryptoName,
		Crypto:     aesCrypto,
	}

	return json.MarshalIndent(ks, "", "  ")
}

func jsonUnMarshal(jsonBytes []byte) (*sealedSeedJSON, *scryptKDF, *aes256GcmCrypto, error) {
	ks := &sealedSeedJSON{}
	kdf := &scryptKDF{}
	aesCrypto := &aes256GcmCrypto{}
	ks.KDF = kdf
	ks.Crypto = aesCrypto
	if err := json.Unmarshal(jsonBytes, &ks); err != nil {
		return nil, nil, nil, err
	}
	if err := checkSealParams(ks, kdf, aesCrypto); err != nil {
		return nil, nil, nil, err
	}

	return ks, kdf, aesCrypto, nil
}

func checkSealParams(ks *sealedSeedJSON, kdf *scryptKDF, aesCrypto *aes256GcmCrypto) error {
	if ks.Version != version1 {
		return fmt.Errorf("unrecognized version:%d", ks.Version)
	}
	if ks.KdfName != kdfName {
		return fmt.Errorf("unrecognized kdf:%s", ks.KdfName)
	}
	if ks.CryptoName != cryptoName {
		return fmt.Errorf("unrecognized crypto:%s", ks.CryptoName)
	}

	if kdf.DkLen != dkLen {
		return fmt.Errorf("unrecognized dkLen:%d", kdf.DkLen)
	}
	if kdf.N != scryptN {
		return fmt.Errorf("unrecognized n:%d", kdf.N)
	}
	if kdf.P != scryptP {
		return fmt.Errorf("unrecognized p:%d", kdf.P)
	}
	if kdf.R != scryptR {
		return fmt.Errorf("unrecognized r:%d", kdf.R)
	}
	if len(kdf.Salt) == 0 || len(aesCrypto.CipherText) == 0 ||
		len(aesCrypto.Nonce) == 0 {
		return fmt.Errorf("the essential content is missed")
	}
	return nil
}

func openSeed(pass []byte, ks *sealedSeedJSON, kdf *scryptKDF, aesCrypto *aes256GcmCrypto) ([]byte, error) {
	var dk []byte
	var plainText []byte
	var block cipher.Block
	var aesgcm cipher.AEAD
	var err error

	salt, _ := utils.FromHex(kdf.Salt)
	if dk, err = scrypt.Key(pass, salt, kdf.N, kdf.R, kdf.P, kdf.DkLen); err != nil {
		return nil, err
	}

	if block, err = aes.NewCipher(dk); err != nil {
		return nil, err
	}

	if aesgcm, err = cipher.NewGCM(block); err != nil {
		return nil, err
	}

	nonce, _ := utils.FromHex(aesCrypto.Nonce)
	cipherText, _ := utils.FromHex(aesCrypto.CipherText)
	if plainText, err = aesgcm.Open(nil, nonce, cipherText, nil); err != nil {
		return nil, err
	}

	if len(plainText) != seedLen {
		return nil, fmt.Errorf("recovered invalid seed length %d", len(plainText))
	}

	return plainText, nil
}

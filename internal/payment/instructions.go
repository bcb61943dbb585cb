package payment

import "strings"

var instructionMap = map[string][]string{
	MethodQRIS: {
		"Buka aplikasi e-wallet atau mobile banking yang mendukung QRIS",
		"Pilih menu Scan / Bayar",
		"Pindai kode QR yang ditampilkan",
		"Periksa nominal pembayaran {{amount}}",
		"Konfirmasi dan selesaikan pembayaran sebelum {{expires_at}}",
	},
}

func GetInstructions(method string) []string {
	if steps, ok := instructionMap[method]; ok {
		return steps
	}

	return []string{
		"Ikuti instruksi pembayaran yang tersedia pada halaman ini",
	}
}

type InstructionVars map[string]string

func InjectVariables(steps []string, vars InstructionVars) []string {
	result := make([]string, 0, len(steps))

	for _, step := range steps {
		updated := step
		for key, value := range vars {
			updated = strings.ReplaceAll(updated, "{{"+key+"}}", value)
		}
		result = append(result, updated)
	}

	return result
}

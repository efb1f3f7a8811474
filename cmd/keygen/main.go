package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/kgricour/archethic-node/crypto"
	"github.com/kgricour/archethic-node/utils"
)

func main() {
	m := flag.Int("m", 0,
		`working mode:
1: Generate a sealed seed
2: Generate a plain seed
3: Export a plain seed from a sealed one
4: Seal an existing plain seed
all require output path, 3,4 require source input path`)

	s := flag.String("s", "", "source input path")
	o := flag.String("o", "", "output path")
	flag.Parse()

	if *m <= 0 || *m > 4 {
		fmt.Printf("Invalid mode:%d\n", *m)
		os.Exit(1)
	}

	if len(*o) == 0 {
		fmt.Printf("output path should not be empty\n")
		os.Exit(1)
	}

	if err := utils.AccessCheck(*o); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	if *m == 3 || *m == 4 {
		if len(*s) == 0 {
			fmt.Printf("source input path should not be empty\n")
			os.Exit(1)
		}

		if err := utils.AccessCheck(*s); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	}

	var err error
	switch *m {
	case 1:
		_, err = crypto.NewSealedSeed(*o)
	case 2:
		_, err = crypto.NewPlainSeed(*o)
	case 3:
		err = crypto.OpenSealedSeed(*s, *o)
	case 4:
		err = crypto.SealPlainSeed(*s, *o)
	}

	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	fmt.Println("done")
}

// Package image splits raw flash images into page records for programming.
//
// # Image Layouts
//
// Two layouts are supported, selected with Layout.IncludesOOB:
//
//	data only:  [PAGE0 DATA(write)][PAGE1 DATA(write)]...
//	with OOB:   [PAGE0 DATA(write)][PAGE0 OOB(meta)][PAGE1 DATA(write)][PAGE1 OOB(meta)]...
//
// Every resulting Page holds WriteSize+MetaSize bytes, matching the raw page
// stride of the device. Missing bytes (a short final page, or the whole
// out-of-band area of a data-only image) are filled with 0xFF, the erased value.
//
// # Usage
//
//	img, err := image.Parse("rootfs.ubi", image.Layout{
//	    WriteSize: 2048,
//	    MetaSize:  64,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = client.Program(ctx, h, img, 0)
package image
